// Package marshal decides how every parameter and return value of a function
// or callback crosses the native boundary on one ABI profile: the Go-side
// strategy, who owns what, and which native argument slots carry it.
package marshal

import (
	"errors"
	"fmt"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/layout"
)

// ErrUnavailable is returned for functions not exported on the profile's
// architecture.
var ErrUnavailable = errors.New("function not available on this architecture")

// Source resolves catalog names. Both *catalog.Catalog and *resolve.Model
// implement it.
type Source interface {
	Lookup(name string) (*catalog.Entry, bool)
}

type planResult struct {
	plan *Plan
	err  error
}

// Planner plans functions and callbacks for the engine's target. Not safe for
// concurrent use.
type Planner struct {
	src    Source
	engine *layout.LayoutEngine
	target layout.Target
	cache  map[string]planResult
}

func NewPlanner(src Source, engine *layout.LayoutEngine) *Planner {
	return &Planner{
		src:    src,
		engine: engine,
		target: engine.Target,
		cache:  make(map[string]planResult),
	}
}

// problems collects the findings of one planning call.
type problems struct {
	subject string
	bag     *diag.Bag
}

func (p *problems) add(code diag.Code, format string, args ...any) {
	p.bag.Add(diag.NewError(code, p.subject, fmt.Sprintf(format, args...)))
}

func (p *problems) err() error {
	return diag.FromBag(diag.ErrUnsupportedMarshalling, p.bag)
}

func (pl *Planner) underlying(t catalog.TypeRef) catalog.TypeRef {
	for depth := 0; depth < 32 && t.Kind == catalog.TNamed; depth++ {
		e, ok := pl.src.Lookup(t.Name)
		if !ok || e.Kind != catalog.KindAlias {
			return t
		}
		t = e.Alias.Target
	}
	return t
}

func (pl *Planner) namedKind(t catalog.TypeRef) catalog.Kind {
	if t.Kind != catalog.TNamed {
		return ""
	}
	e, ok := pl.src.Lookup(t.Name)
	if !ok {
		return ""
	}
	return e.Kind
}

func isAggregate(k catalog.Kind) bool {
	return k == catalog.KindStruct || k == catalog.KindUnion
}

// PlanFunction plans e, which must be a function entry.
func (pl *Planner) PlanFunction(e *catalog.Entry) (*Plan, error) {
	if e == nil || e.Kind != catalog.KindFunction {
		return nil, fmt.Errorf("marshal: %v is not a function", entryName(e))
	}
	if r, ok := pl.cache[e.Name]; ok {
		return r.plan, r.err
	}
	plan, err := pl.planFunction(e)
	pl.cache[e.Name] = planResult{plan: plan, err: err}
	return plan, err
}

func entryName(e *catalog.Entry) string {
	if e == nil {
		return "<nil>"
	}
	return e.Name
}

func (pl *Planner) planFunction(e *catalog.Entry) (*Plan, error) {
	fn := e.Function
	if !fn.AvailableOn(pl.target.GOARCH) {
		return nil, ErrUnavailable
	}
	probs := &problems{subject: e.Name, bag: diag.NewBag(32)}
	plan := &Plan{
		Name:      e.Name,
		Kind:      catalog.KindFunction,
		Profile:   pl.target.Profile,
		GOARCH:    pl.target.GOARCH,
		DLL:       fn.DLL,
		CallConv:  fn.CallConv,
		Failure:   fn.Failure,
		LastError: fn.LastError,
		Params:    make([]ParamPlan, len(fn.Params)),
	}

	sizeFor := make(map[string]string)
	for _, p := range fn.Params {
		if p.Buffer != nil && p.Buffer.SizeParam != "" {
			sizeFor[p.Buffer.SizeParam] = p.Name
		}
	}

	stringOut := false
	for i, p := range fn.Params {
		pp := pl.planParam(fn, i, p, sizeFor, probs)
		plan.Params[i] = pp
		switch pp.Strategy {
		case StringIn, Callback:
			plan.Fallible = true
		case StringOutBuffer, StringCalleeAlloc:
			plan.Fallible = true
			stringOut = true
		case ScalarOut:
			if pp.Owned() {
				plan.Scoped = true
			}
		}
	}
	for i := range plan.Params {
		if plan.Params[i].Strategy == StringOutBuffer {
			pl.checkBuffer(plan, &plan.Params[i], probs)
		}
	}

	plan.Return = pl.planReturn(fn.Returns, probs)
	if fn.Release != "" {
		plan.Return.Ownership = catalog.CallerFrees
		plan.Return.Release = fn.Release
		plan.Scoped = true
	}
	if plan.Return.Strategy == StringReturn && fn.Release != "" {
		probs.add(diag.MarOwnership, "returned strings are borrowed and cannot name a release function")
	}
	if fn.Failure != catalog.FailNone {
		plan.Fallible = true
	}
	ret := &plan.Return
	ret.Exposed = ret.Strategy != Void &&
		!(pl.isBool(ret.Type) && fn.Failure != catalog.FailNone) &&
		fn.Failure != catalog.FailStatus &&
		!stringOut
	if ret.Ownership == catalog.CallerFrees && !ret.Exposed {
		probs.add(diag.MarOwnership, "owned return value is not exposed")
	}

	if err := probs.err(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (pl *Planner) isBool(t catalog.TypeRef) bool {
	u := pl.underlying(t)
	return u.Kind == catalog.TPrim && u.Prim == catalog.PrimBool
}

func (pl *Planner) isInteger(t catalog.TypeRef) bool {
	u := pl.underlying(t)
	if u.Kind != catalog.TPrim {
		return false
	}
	switch u.Prim {
	case catalog.PrimVoid, catalog.PrimF32, catalog.PrimF64, catalog.PrimHandle, catalog.PrimPtr:
		return false
	}
	return true
}

// scalarSlots lowers an integer-like scalar of size bytes.
func (pl *Planner) scalarSlots(size int) []Slot {
	if size > pl.target.PtrSize {
		return []Slot{{Kind: SlotLow}, {Kind: SlotHigh}}
	}
	return []Slot{{Kind: SlotWord}}
}

func word() []Slot { return []Slot{{Kind: SlotWord}} }

func (pl *Planner) planParam(fn *catalog.Function, i int, p catalog.Param, sizeFor map[string]string, probs *problems) ParamPlan {
	u := pl.underlying(p.Type)
	pp := ParamPlan{
		Name:       p.Name,
		Index:      i,
		Type:       p.Type,
		Underlying: u,
		Ownership:  p.Ownership,
		Release:    p.Release,
		Optional:   p.Optional,
		Retained:   p.Retained,
		Dir:        p.Dir,
		Buffer:     p.Buffer,
	}
	what := "parameter " + p.Name

	if owner, ok := sizeFor[p.Name]; ok {
		pp.Strategy = BufferSize
		pp.SizeFor = owner
		pp.Slots = word()
		if !pl.isInteger(p.Type) && !(u.Kind == catalog.TPointer && pl.isInteger(*u.Elem)) {
			probs.add(diag.MarBufferContract, "%s: buffer size must be an integer or an integer pointer", what)
		}
		return pp
	}
	if p.SizeOf != "" {
		pp.Strategy = StructSize
		pp.SizeOf = p.SizeOf
		pp.Slots = pl.scalarSlots(pl.primSize(u))
		if _, target := fn.Param(p.SizeOf); target != nil && target.Type.Kind == catalog.TPointer {
			pp.Struct = pl.underlying(*target.Type.Elem).Name
		}
		return pp
	}

	byValueIn := func() bool {
		if p.Dir != catalog.DirIn {
			probs.add(diag.MarUnsupportedParam, "%s: a value of type %s cannot be an output, pass a pointer", what, p.Type)
			return false
		}
		return true
	}

	switch u.Kind {
	case catalog.TPrim:
		byValueIn()
		switch {
		case u.Prim.IsFloat():
			pp.Strategy = Float
			if !pl.target.FloatArgs {
				probs.add(diag.MarFloatArgument, "%s: floating point arguments cannot be passed on %s", what, pl.target.Profile)
			}
			if u.Prim == catalog.PrimF64 && pl.target.PtrSize < 8 {
				pp.Slots = []Slot{{Kind: SlotLow}, {Kind: SlotHigh}}
			} else {
				pp.Slots = []Slot{{Kind: SlotFloat}}
			}
		case u.Prim == catalog.PrimHandle:
			pp.Strategy = Handle
			pp.Slots = word()
		case u.Prim == catalog.PrimPtr:
			pp.Strategy = Opaque
			pp.Slots = word()
		case u.Prim == catalog.PrimVoid:
			probs.add(diag.MarUnsupportedParam, "%s has type void", what)
		default:
			pp.Strategy = Scalar
			pp.Slots = pl.scalarSlots(u.Prim.Size())
		}

	case catalog.TString:
		pp.Slots = word()
		switch {
		case p.Dir == catalog.DirIn:
			pp.Strategy = StringIn
		case p.Dir == catalog.DirOut && p.Buffer != nil && p.Buffer.Kind != catalog.BufferCalleeAlloc:
			pp.Strategy = StringOutBuffer
		default:
			probs.add(diag.MarBufferContract, "%s: string outputs need a buffer contract", what)
		}

	case catalog.TPointer:
		pp.Slots = word()
		elem := pl.underlying(*u.Elem)
		switch {
		case elem.Kind == catalog.TString:
			pp.Strategy = StringCalleeAlloc
			pp.Ownership = catalog.CallerFrees
		case elem.Kind == catalog.TNamed && isAggregate(pl.namedKind(elem)):
			pp.Struct = elem.Name
			switch p.Dir {
			case catalog.DirOut:
				pp.Strategy = StructOut
			case catalog.DirInOut:
				pp.Strategy = StructInOut
			default:
				pp.Strategy = StructIn
			}
			if e, ok := pl.src.Lookup(elem.Name); ok {
				pp.SizeField = e.Aggregate.SizeField
			}
			if _, err := pl.engine.LayoutNamed(elem.Name); err != nil {
				probs.add(diag.MarUnsupportedParam, "%s: %v", what, err)
			}
		case elem.Kind == catalog.TPrim && elem.Prim != catalog.PrimVoid:
			if p.Dir == catalog.DirOut {
				pp.Strategy = ScalarOut
			} else {
				pp.Strategy = ScalarInOut
			}
		default:
			probs.add(diag.MarUnsupportedParam, "%s: pointers to %s cannot be marshalled, use ptr", what, *u.Elem)
		}
		if pp.Release != "" && pp.Strategy != StringCalleeAlloc && pp.Strategy != ScalarOut {
			probs.add(diag.MarOwnership, "%s: only output handles and callee-allocated strings can be released", what)
		}

	case catalog.TNamed:
		switch k := pl.namedKind(u); {
		case isAggregate(k):
			byValueIn()
			pp.Strategy = StructByValue
			pp.Struct = u.Name
			pl.lowerStruct(&pp, probs)
		case k == catalog.KindCallback:
			byValueIn()
			pp.Strategy = Callback
			pp.Slots = word()
		default:
			probs.add(diag.MarUnsupportedParam, "%s: %s is not a type", what, u.Name)
		}

	default:
		probs.add(diag.MarUnsupportedParam, "%s: type %s cannot be passed", what, p.Type)
	}
	return pp
}

func (pl *Planner) primSize(t catalog.TypeRef) int {
	if t.Kind == catalog.TPrim {
		if t.Prim.PointerSized() {
			return pl.target.PtrSize
		}
		return t.Prim.Size()
	}
	return pl.target.PtrSize
}

// lowerStruct applies the profile's by-value struct passing rule.
func (pl *Planner) lowerStruct(pp *ParamPlan, probs *problems) {
	l, err := pl.engine.LayoutNamed(pp.Struct)
	if err != nil {
		probs.add(diag.MarUnsupportedParam, "parameter %s: %v", pp.Name, err)
		return
	}
	pp.StructBytes = l.Size
	words := func(width int) {
		n := (l.Size + width - 1) / width
		pp.Slots = make([]Slot, n)
		for i := range pp.Slots {
			pp.Slots[i] = Slot{Kind: SlotStructWord, Word: i}
		}
	}
	switch pl.target.StructPass {
	case catalog.PassWin64:
		switch l.Size {
		case 1, 2, 4, 8:
			words(8)
		default:
			pp.Slots = []Slot{{Kind: SlotStructRef}}
		}
	case catalog.PassAAPCS64:
		if pl.hasFloat(catalog.Named(pp.Struct), 0) {
			probs.add(diag.MarUnsupportedParam, "parameter %s: structs with floating point members travel in vector registers on %s", pp.Name, pl.target.Profile)
			return
		}
		if l.Size <= 16 {
			words(8)
		} else {
			pp.Slots = []Slot{{Kind: SlotStructRef}}
		}
	case catalog.PassStack:
		words(pl.target.PtrSize)
	default:
		probs.add(diag.MarUnsupportedParam, "parameter %s: unknown struct passing rule %q", pp.Name, pl.target.StructPass)
	}
}

func (pl *Planner) hasFloat(t catalog.TypeRef, depth int) bool {
	if depth > 32 {
		return false
	}
	u := pl.underlying(t)
	switch u.Kind {
	case catalog.TPrim:
		return u.Prim.IsFloat()
	case catalog.TArray:
		return pl.hasFloat(*u.Elem, depth+1)
	case catalog.TNamed:
		e, ok := pl.src.Lookup(u.Name)
		if !ok || e.Aggregate == nil {
			return false
		}
		for _, f := range e.Aggregate.Fields {
			if pl.hasFloat(f.Type, depth+1) {
				return true
			}
		}
	}
	return false
}

func (pl *Planner) planReturn(t catalog.TypeRef, probs *problems) ReturnPlan {
	u := pl.underlying(t)
	rp := ReturnPlan{Type: t, Underlying: u, Ownership: catalog.Borrowed}
	switch u.Kind {
	case catalog.TPrim:
		switch {
		case u.Prim == catalog.PrimVoid:
			rp.Strategy = Void
		case u.Prim.IsFloat():
			probs.add(diag.MarUnsupportedRet, "floating point returns cannot be read back")
		case u.Prim == catalog.PrimHandle:
			rp.Strategy = Handle
		case u.Prim == catalog.PrimPtr:
			rp.Strategy = Opaque
		default:
			rp.Strategy = Scalar
			rp.Joined = u.Prim.Size() > pl.target.PtrSize
		}
	case catalog.TString:
		rp.Strategy = StringReturn
	case catalog.TPointer:
		probs.add(diag.MarUnsupportedRet, "typed pointer return %s, declare it as ptr", t)
	case catalog.TNamed:
		if isAggregate(pl.namedKind(u)) {
			probs.add(diag.MarUnsupportedRet, "struct return %s cannot be read back", t)
		} else {
			probs.add(diag.MarUnsupportedRet, "return type %s cannot be marshalled", t)
		}
	default:
		probs.add(diag.MarUnsupportedRet, "return type %s cannot be marshalled", t)
	}
	return rp
}

// checkBuffer verifies the buffer contract of a StringOutBuffer parameter.
func (pl *Planner) checkBuffer(plan *Plan, pp *ParamPlan, probs *problems) {
	b := pp.Buffer
	size := plan.Param(b.SizeParam)
	if size == nil {
		probs.add(diag.MarBufferContract, "parameter %s: size parameter %s does not exist", pp.Name, b.SizeParam)
		return
	}
	byPointer := size.Underlying.Kind == catalog.TPointer
	switch b.Kind {
	case catalog.BufferFixed:
		if b.CapacityConst != "" {
			if k, ok := pl.src.Lookup(b.CapacityConst); !ok || k.Kind != catalog.KindConstant {
				probs.add(diag.MarBufferContract, "parameter %s: capacity %s is not a constant", pp.Name, b.CapacityConst)
			}
		}
	case catalog.BufferQuery:
		if byPointer {
			probs.add(diag.MarBufferContract, "parameter %s: query buffers need an integer size input", pp.Name)
		}
	case catalog.BufferQueryFn:
		if byPointer {
			probs.add(diag.MarBufferContract, "parameter %s: query_fn buffers need an integer size input", pp.Name)
		}
		pl.checkQueryFn(plan, pp, probs)
	}
}

// checkQueryFn requires a length function whose wrapper takes exactly the
// query arguments and returns an integer.
func (pl *Planner) checkQueryFn(plan *Plan, pp *ParamPlan, probs *problems) {
	b := pp.Buffer
	e, ok := pl.src.Lookup(b.QueryFn)
	if !ok || e.Kind != catalog.KindFunction {
		probs.add(diag.MarBufferContract, "parameter %s: query function %s is unknown", pp.Name, b.QueryFn)
		return
	}
	q, err := pl.PlanFunction(e)
	if err != nil {
		probs.add(diag.MarBufferContract, "parameter %s: query function %s: %v", pp.Name, b.QueryFn, err)
		return
	}
	if q.Return.Strategy != Scalar || !q.Return.Exposed {
		probs.add(diag.MarBufferContract, "parameter %s: query function %s does not return a length", pp.Name, b.QueryFn)
	}
	if q.Scoped || len(q.Params) != len(b.QueryArgs) {
		probs.add(diag.MarBufferContract, "parameter %s: query function %s does not take the query arguments", pp.Name, b.QueryFn)
		return
	}
	for i, arg := range b.QueryArgs {
		src := plan.Param(arg)
		dst := &q.Params[i]
		if src == nil || dst.Strategy.Hidden() || dst.Strategy.Result() || !src.Type.Equal(dst.Type) {
			probs.add(diag.MarBufferContract, "parameter %s: query argument %s does not match %s.%s", pp.Name, arg, b.QueryFn, dst.Name)
		}
	}
}

// PlanCallback plans e, which must be a callback entry. Every argument has to
// fit one native slot.
func (pl *Planner) PlanCallback(e *catalog.Entry) (*Plan, error) {
	if e == nil || e.Kind != catalog.KindCallback {
		return nil, fmt.Errorf("marshal: %v is not a callback", entryName(e))
	}
	if r, ok := pl.cache[e.Name]; ok {
		return r.plan, r.err
	}
	plan, err := pl.planCallback(e)
	pl.cache[e.Name] = planResult{plan: plan, err: err}
	return plan, err
}

func (pl *Planner) planCallback(e *catalog.Entry) (*Plan, error) {
	cb := e.Callback
	probs := &problems{subject: e.Name, bag: diag.NewBag(32)}
	plan := &Plan{
		Name:     e.Name,
		Kind:     catalog.KindCallback,
		Profile:  pl.target.Profile,
		GOARCH:   pl.target.GOARCH,
		CallConv: cb.CallConv,
		Failure:  catalog.FailNone,
		Params:   make([]ParamPlan, len(cb.Params)),
	}
	for i, p := range cb.Params {
		u := pl.underlying(p.Type)
		pp := ParamPlan{
			Name: p.Name, Index: i, Type: p.Type, Underlying: u,
			Ownership: catalog.Borrowed, Dir: catalog.DirIn, Slots: word(),
		}
		what := "parameter " + p.Name
		switch u.Kind {
		case catalog.TPrim:
			switch {
			case u.Prim.IsFloat():
				probs.add(diag.MarCallbackSlot, "%s: floating point arguments cannot reach a callback", what)
			case u.Prim == catalog.PrimHandle:
				pp.Strategy = Handle
			case u.Prim == catalog.PrimPtr:
				pp.Strategy = Opaque
			default:
				pp.Strategy = Scalar
				if u.Prim.Size() > pl.target.PtrSize {
					probs.add(diag.MarCallbackSlot, "%s: %s does not fit one argument slot on %s", what, p.Type, pl.target.Profile)
				}
			}
		case catalog.TString:
			pp.Strategy = StringIn
		case catalog.TPointer:
			elem := pl.underlying(*u.Elem)
			switch {
			case elem.Kind == catalog.TNamed && isAggregate(pl.namedKind(elem)):
				pp.Strategy = StructInOut
				pp.Struct = elem.Name
			case elem.Kind == catalog.TPrim && elem.Prim != catalog.PrimVoid:
				pp.Strategy = ScalarInOut
			default:
				probs.add(diag.MarCallbackSlot, "%s: pointers to %s cannot be passed to a callback", what, *u.Elem)
			}
		default:
			probs.add(diag.MarCallbackSlot, "%s: %s does not fit one argument slot", what, p.Type)
		}
		plan.Params[i] = pp
	}

	ret := pl.underlying(cb.Returns)
	plan.Return = ReturnPlan{Type: cb.Returns, Underlying: ret, Ownership: catalog.Borrowed}
	switch {
	case ret.Kind == catalog.TPrim && ret.Prim == catalog.PrimVoid:
		plan.Return.Strategy = Void
	case ret.Kind == catalog.TPrim && ret.Prim.IsFloat():
		probs.add(diag.MarUnsupportedRet, "callbacks cannot return floating point values")
	case ret.Kind == catalog.TPrim && ret.Prim == catalog.PrimHandle:
		plan.Return.Strategy = Handle
	case ret.Kind == catalog.TPrim && ret.Prim == catalog.PrimPtr:
		plan.Return.Strategy = Opaque
	case ret.Kind == catalog.TPrim:
		plan.Return.Strategy = Scalar
		if ret.Prim.Size() > pl.target.PtrSize {
			probs.add(diag.MarCallbackSlot, "return value %s does not fit one slot on %s", cb.Returns, pl.target.Profile)
		}
	default:
		probs.add(diag.MarUnsupportedRet, "callbacks cannot return %s", cb.Returns)
	}
	plan.Return.Exposed = plan.Return.Strategy != Void

	if err := probs.err(); err != nil {
		return nil, err
	}
	return plan, nil
}
