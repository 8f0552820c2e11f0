package catalog

import (
	"fmt"
	"slices"
	"strings"

	"winapigen/internal/dag"
	"winapigen/internal/diag"
)

var validPacks = []int{0, 1, 2, 4, 8, 16}

// checker runs the construction-time checks. Every problem is reported; the
// caller decides from the bag whether construction failed.
type checker struct {
	r        diag.Reporter
	entries  map[string]*Entry
	profiles map[string]Profile
	goarches map[string]bool
}

func (c *checker) errorf(code diag.Code, subject, format string, args ...any) {
	diag.ReportError(c.r, code, subject, fmt.Sprintf(format, args...)).Emit()
}

func (c *checker) lookup(name string) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

func (c *checker) underlying(t TypeRef) TypeRef {
	return underlying(c.lookup, t)
}

func underlying(lookup func(string) (*Entry, bool), t TypeRef) TypeRef {
	for depth := 0; depth < 32 && t.Kind == TNamed; depth++ {
		e, ok := lookup(t.Name)
		if !ok || e.Kind != KindAlias {
			return t
		}
		t = e.Alias.Target
	}
	return t
}

func isIntegerPrim(p Prim) bool {
	switch p {
	case PrimI8, PrimU8, PrimI16, PrimU16, PrimI32, PrimU32, PrimI64, PrimU64, PrimIsize, PrimUsize:
		return true
	}
	return false
}

func (c *checker) isInteger(t TypeRef) bool {
	u := c.underlying(t)
	return u.Kind == TPrim && isIntegerPrim(u.Prim)
}

func (c *checker) isPointerShaped(t TypeRef) bool {
	u := c.underlying(t)
	switch u.Kind {
	case TPointer, TString:
		return true
	case TPrim:
		return u.Prim.PointerSized()
	}
	return false
}

// namedKind returns the kind of the entry t names, or "" when t is not a
// reference or the target is missing (the graph check reports those).
func (c *checker) namedKind(t TypeRef) Kind {
	if t.Kind != TNamed {
		return ""
	}
	e, ok := c.entries[t.Name]
	if !ok {
		return ""
	}
	return e.Kind
}

func (c *checker) checkProfiles(profiles []Profile) {
	if len(profiles) == 0 {
		c.errorf(diag.CatBadProfile, "", "no ABI profiles declared")
	}
	for _, p := range profiles {
		if _, dup := c.profiles[p.Name]; dup || p.Name == "" {
			c.errorf(diag.CatBadProfile, p.Name, "profile name is empty or declared twice")
			continue
		}
		c.profiles[p.Name] = p
		c.goarches[p.GOARCH] = true
		if p.GOARCH == "" {
			c.errorf(diag.CatBadProfile, p.Name, "goarch is not set")
		}
		if p.PtrSize != 4 && p.PtrSize != 8 {
			c.errorf(diag.CatBadProfile, p.Name, "pointer size %d is not 4 or 8", p.PtrSize)
		}
		for _, a := range []int{p.PtrAlign, p.Int64Align, p.GoInt64Align} {
			if a <= 0 || a&(a-1) != 0 {
				c.errorf(diag.CatBadProfile, p.Name, "alignment %d is not a power of two", a)
			}
		}
		if !slices.Contains(validPacks, p.DefaultPack) {
			c.errorf(diag.CatBadProfile, p.Name, "default pack %d is invalid", p.DefaultPack)
		}
		switch p.StructPass {
		case PassWin64, PassAAPCS64, PassStack:
		default:
			c.errorf(diag.CatBadProfile, p.Name, "unknown struct passing rule %q", p.StructPass)
		}
	}
}

func (c *checker) checkEntry(e *Entry) {
	switch e.Kind {
	case KindAlias:
		c.checkAlias(e)
	case KindStruct, KindUnion:
		c.checkAggregate(e)
	case KindCallback:
		c.checkCallback(e)
	case KindFunction:
		c.checkFunction(e)
	case KindConstant:
		c.checkConstant(e)
	default:
		c.errorf(diag.CatBadEntry, e.Name, "unknown entry kind %q", e.Kind)
	}
}

func (c *checker) checkAlias(e *Entry) {
	t := e.Alias.Target
	switch {
	case t.Kind == TPrim && t.Prim != PrimVoid:
	case t.Kind == TNamed:
		switch c.namedKind(t) {
		case KindFunction, KindConstant:
			c.errorf(diag.CatBadEntry, e.Name, "alias target %s is not a type", t.Name)
		}
	default:
		c.errorf(diag.CatBadEntry, e.Name, "alias target must be a primitive or a named type, got %s", t)
	}
}

func (c *checker) checkAggregate(e *Entry) {
	agg := e.Aggregate
	if len(agg.Fields) == 0 {
		c.errorf(diag.CatBadEntry, e.Name, "%s has no fields", e.Kind)
	}
	seen := make(map[string]bool, len(agg.Fields))
	for _, f := range agg.Fields {
		if f.Name == "" || seen[f.Name] {
			c.errorf(diag.CatBadEntry, e.Name, "field name %q is empty or repeated", f.Name)
		}
		seen[f.Name] = true
		if f.Type.IsVoid() {
			c.errorf(diag.CatBadTypeRef, e.Name, "field %s has type void", f.Name)
		}
		c.checkValueType(e.Name, "field "+f.Name, f.Type)
	}
	if !slices.Contains(validPacks, agg.Pack) {
		c.errorf(diag.CatBadEntry, e.Name, "pack %d is invalid", agg.Pack)
	}
	if agg.SizeField != "" {
		if e.Kind == KindUnion {
			c.errorf(diag.CatBadEntry, e.Name, "unions cannot declare a size field")
		}
		idx := slices.IndexFunc(agg.Fields, func(f Field) bool { return f.Name == agg.SizeField })
		if idx < 0 {
			c.errorf(diag.CatBadEntry, e.Name, "size field %s is not a field", agg.SizeField)
		} else if !c.isInteger(agg.Fields[idx].Type) {
			c.errorf(diag.CatBadEntry, e.Name, "size field %s is not an integer", agg.SizeField)
		}
	}
	for profile := range agg.Sizes {
		if _, ok := c.profiles[profile]; !ok {
			c.errorf(diag.CatBadEntry, e.Name, "documented size for unknown profile %q", profile)
		}
	}
}

// checkValueType validates a type used for a field or a by-value parameter.
func (c *checker) checkValueType(subject, what string, t TypeRef) {
	switch t.Kind {
	case TNamed:
		switch c.namedKind(t) {
		case KindFunction, KindConstant:
			c.errorf(diag.CatBadTypeRef, subject, "%s: %s is not a type", what, t.Name)
		}
	case TPointer:
		if t.Elem.IsVoid() {
			c.errorf(diag.CatBadTypeRef, subject, "%s: use ptr instead of *void", what)
		}
		c.checkValueType(subject, what, *t.Elem)
	case TArray:
		c.checkValueType(subject, what, *t.Elem)
	}
}

func (c *checker) checkCallback(e *Entry) {
	cb := e.Callback
	c.checkConv(e.Name, cb.CallConv)
	for _, p := range cb.Params {
		if p.Buffer != nil || p.Release != "" || p.Retained || p.SizeOf != "" {
			c.errorf(diag.CatBadEntry, e.Name, "callback parameter %s cannot carry buffer, release or retention hints", p.Name)
		}
		if p.Dir != DirIn {
			c.errorf(diag.CatBadEntry, e.Name, "callback parameter %s must be an input", p.Name)
		}
		c.checkParamType(e.Name, p)
	}
	c.checkValueType(e.Name, "return type", cb.Returns)
}

func (c *checker) checkConv(subject string, cc CallConv) {
	switch cc {
	case Stdcall, Cdecl:
	default:
		c.errorf(diag.CatUnknownConvention, subject, "unknown calling convention %q", cc)
	}
}

func (c *checker) checkParamType(subject string, p Param) {
	what := "parameter " + p.Name
	switch p.Type.Kind {
	case TPrim:
		if p.Type.Prim == PrimVoid {
			c.errorf(diag.CatBadTypeRef, subject, "%s has type void", what)
		}
	case TArray:
		c.errorf(diag.CatBadTypeRef, subject, "%s: arrays cannot be passed, use a pointer", what)
	case TPointer:
		if p.Type.Elem.Kind == TString && (p.Buffer == nil || p.Buffer.Kind != BufferCalleeAlloc) {
			c.errorf(diag.CatBadTypeRef, subject, "%s: string pointers need a callee_alloc buffer contract", what)
		}
		c.checkValueType(subject, what, p.Type)
	default:
		c.checkValueType(subject, what, p.Type)
	}
	switch p.Dir {
	case DirIn, DirOut, DirInOut:
	default:
		c.errorf(diag.CatBadEntry, subject, "%s: unknown direction %q", what, p.Dir)
	}
	switch p.Ownership {
	case Borrowed, CallerFrees, CalleeFrees:
	default:
		c.errorf(diag.CatBadEntry, subject, "%s: unknown ownership %q", what, p.Ownership)
	}
}

func (c *checker) checkFunction(e *Entry) {
	fn := e.Function
	if fn.DLL == "" {
		c.errorf(diag.CatBadEntry, e.Name, "dll is not set")
	}
	c.checkConv(e.Name, fn.CallConv)
	for _, a := range fn.Arch {
		if !c.goarches[a] {
			c.errorf(diag.CatBadEntry, e.Name, "arch %q matches no profile", a)
		}
	}

	names := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		if p.Name == "" || names[p.Name] {
			c.errorf(diag.CatBadEntry, e.Name, "parameter name %q is empty or repeated", p.Name)
		}
		names[p.Name] = true
	}

	for _, p := range fn.Params {
		c.checkParamType(e.Name, p)
		c.checkParamHints(e, p)
	}

	ret := fn.Returns
	if ret.Kind == TArray {
		c.errorf(diag.CatBadTypeRef, e.Name, "arrays cannot be returned")
	}
	c.checkValueType(e.Name, "return type", ret)

	switch fn.Failure {
	case FailNone:
	case FailZero, FailNonzero, FailStatus:
		if !c.isInteger(ret) && !c.isBool(ret) && !c.isPointerShaped(ret) {
			c.errorf(diag.CatBadEntry, e.Name, "failure %q needs an integer return", fn.Failure)
		}
	case FailNull, FailInvalidHandle:
		if !c.isPointerShaped(ret) {
			c.errorf(diag.CatBadEntry, e.Name, "failure %q needs a handle or pointer return", fn.Failure)
		}
	case FailHResult:
		if u := c.underlying(ret); u.Kind != TPrim || u.Prim != PrimI32 {
			c.errorf(diag.CatBadEntry, e.Name, "failure %q needs an i32 return", fn.Failure)
		}
	default:
		c.errorf(diag.CatBadEntry, e.Name, "unknown failure sentinel %q", fn.Failure)
	}
	if ret.IsVoid() && fn.Failure != FailNone {
		c.errorf(diag.CatBadEntry, e.Name, "void functions cannot declare a failure sentinel")
	}
	switch fn.LastError {
	case LastErrorNone:
	case LastErrorSet, LastErrorIfSet:
		if fn.Failure == FailNone || fn.Failure == FailHResult || fn.Failure == FailStatus {
			c.errorf(diag.CatBadEntry, e.Name, "last_error needs a sentinel that does not carry its own code")
		}
	default:
		c.errorf(diag.CatBadEntry, e.Name, "unknown last_error mode %q", fn.LastError)
	}
	if fn.Release != "" {
		c.checkRelease(e.Name, "return value", fn.Release)
		if !c.isPointerShaped(ret) {
			c.errorf(diag.CatBadEntry, e.Name, "only handle or pointer returns can be released")
		}
	}
}

func (c *checker) isBool(t TypeRef) bool {
	u := c.underlying(t)
	return u.Kind == TPrim && u.Prim == PrimBool
}

func (c *checker) checkRelease(subject, what, release string) {
	r, ok := c.entries[release]
	if !ok {
		return // reported by the graph check
	}
	if r.Kind != KindFunction {
		c.errorf(diag.CatBadEntry, subject, "%s: release %s is not a function", what, release)
		return
	}
	if len(r.Function.Params) != 1 {
		c.errorf(diag.CatBadEntry, subject, "%s: release %s must take exactly one parameter", what, release)
	}
}

func (c *checker) checkParamHints(e *Entry, p Param) {
	fn := e.Function
	what := "parameter " + p.Name

	if p.Retained && c.namedKind(c.underlying(p.Type)) != KindCallback {
		c.errorf(diag.CatBadEntry, e.Name, "%s: only callbacks can be retained", what)
	}
	if p.Release != "" {
		c.checkRelease(e.Name, what, p.Release)
		isBufferRelease := p.Buffer != nil && p.Buffer.Kind == BufferCalleeAlloc
		if !isBufferRelease && (p.Type.Kind != TPointer || p.Dir == DirIn || !c.isPointerShaped(*p.Type.Elem)) {
			c.errorf(diag.CatBadEntry, e.Name, "%s: release needs an output pointer to a handle", what)
		}
	}
	if p.SizeOf != "" {
		_, target := fn.Param(p.SizeOf)
		switch {
		case target == nil:
			c.errorf(diag.CatBadEntry, e.Name, "%s: size_of names unknown parameter %s", what, p.SizeOf)
		case target.Type.Kind != TPointer || c.underlying(*target.Type.Elem).Kind != TNamed:
			c.errorf(diag.CatBadEntry, e.Name, "%s: size_of target %s is not a struct pointer", what, p.SizeOf)
		}
		if !c.isInteger(p.Type) || p.Dir != DirIn {
			c.errorf(diag.CatBadEntry, e.Name, "%s: size_of parameters must be integer inputs", what)
		}
	}
	if p.Buffer != nil {
		c.checkBuffer(e, p)
	}
}

func (c *checker) checkBuffer(e *Entry, p Param) {
	fn := e.Function
	b := p.Buffer
	what := "parameter " + p.Name

	switch b.Kind {
	case BufferFixed, BufferQuery, BufferQueryFn:
		if p.Type.Kind != TString || p.Dir != DirOut {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: %s buffers must be string outputs", what, b.Kind)
		}
		_, size := fn.Param(b.SizeParam)
		switch {
		case size == nil:
			c.errorf(diag.CatBadBuffer, e.Name, "%s: size parameter %q does not exist", what, b.SizeParam)
		case size.Name == p.Name:
			c.errorf(diag.CatBadBuffer, e.Name, "%s: buffer cannot be its own size", what)
		case c.isInteger(size.Type) && size.Dir == DirIn:
		case size.Type.Kind == TPointer && c.isInteger(*size.Type.Elem) && size.Dir == DirInOut:
		default:
			c.errorf(diag.CatBadBuffer, e.Name, "%s: size parameter %s must be an integer input or an inout integer pointer", what, b.SizeParam)
		}
		if p.Release != "" {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: caller buffers have nothing to release", what)
		}
	case BufferCalleeAlloc:
		if p.Type.Kind != TPointer || p.Type.Elem.Kind != TString || p.Dir != DirOut {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: callee_alloc buffers must be *wstr or *astr outputs", what)
		}
		if p.Release == "" {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: callee_alloc buffers need a release function", what)
		}
		if b.SizeParam != "" {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: callee_alloc buffers take no size parameter", what)
		}
	default:
		c.errorf(diag.CatBadBuffer, e.Name, "%s: unknown buffer kind %q", what, b.Kind)
		return
	}

	switch b.Kind {
	case BufferFixed:
		if b.Capacity <= 0 && b.CapacityConst == "" {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: fixed buffers need a capacity", what)
		}
		if b.CapacityConst != "" {
			if k, ok := c.entries[b.CapacityConst]; ok && (k.Kind != KindConstant || k.Constant.Form != ConstInt || k.Constant.Int <= 0) {
				c.errorf(diag.CatBadBuffer, e.Name, "%s: capacity %s is not a positive integer constant", what, b.CapacityConst)
			}
		}
	case BufferQueryFn:
		q, ok := c.entries[b.QueryFn]
		if b.QueryFn == "" {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: query_fn is not set", what)
		} else if ok && q.Kind != KindFunction {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: query_fn %s is not a function", what, b.QueryFn)
		} else if ok && len(q.Function.Params) != len(b.QueryArgs) {
			c.errorf(diag.CatBadBuffer, e.Name, "%s: query_fn %s takes %d arguments, %d given",
				what, b.QueryFn, len(q.Function.Params), len(b.QueryArgs))
		}
		for _, arg := range b.QueryArgs {
			if _, ap := fn.Param(arg); ap == nil || ap.Dir != DirIn {
				c.errorf(diag.CatBadBuffer, e.Name, "%s: query argument %s is not an input parameter", what, arg)
			}
		}
	}
	if b.ReturnsLength && (b.Kind != BufferFixed || !c.isInteger(fn.Returns)) {
		c.errorf(diag.CatBadBuffer, e.Name, "%s: returns_length needs a fixed buffer and an integer return", what)
	}
	if b.Kind != BufferQueryFn && (b.QueryFn != "" || len(b.QueryArgs) > 0) {
		c.errorf(diag.CatBadBuffer, e.Name, "%s: query_fn is only valid for query_fn buffers", what)
	}
}

func (c *checker) checkConstant(e *Entry) {
	k := e.Constant
	switch k.Form {
	case ConstInt:
		if !c.isInteger(k.Type) && !c.isPointerShaped(k.Type) && !c.isBool(k.Type) {
			c.errorf(diag.CatBadConstant, e.Name, "integer value for non-integer type %s", k.Type)
		}
	case ConstString:
		if k.Type.Kind != TString {
			c.errorf(diag.CatBadConstant, e.Name, "string value needs type wstr or astr, got %s", k.Type)
		}
		if strings.ContainsRune(k.Text, 0) {
			c.errorf(diag.CatBadConstant, e.Name, "string value contains NUL")
		}
	case ConstGUID:
		if c.namedKind(k.Type) != KindStruct {
			c.errorf(diag.CatBadConstant, e.Name, "GUID constants need the GUID struct")
		}
	default:
		// decode already reported the bad value
	}
}

// checkGraph validates references and acyclicity over the whole catalog.
func checkGraph(entries []*Entry, r diag.Reporter) {
	nodes := make([]dag.Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, dag.Node{Name: e.Name, Deps: e.Refs()})
	}
	idx := dag.BuildIndex(nodes)
	g := dag.BuildGraph(idx, nodes, r)
	topo := dag.ToposortKahn(g)
	dag.ReportCycles(idx, g, topo, r)
}
