package emit

import (
	"fmt"
	"strings"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/marshal"
)

// emitFuncs writes DLL and proc variables, release helpers and one wrapper
// per function. A wrapper whose text is the same on every profile goes to the
// shared file; the others go to the file of each profile they exist on.
func (e *Emitter) emitFuncs() {
	funcs := e.model.OfKind(catalog.KindFunction)
	if len(funcs) == 0 {
		return
	}
	shared := newFile()
	perArch := make([]*goFile, len(e.targets))
	for i := range perArch {
		perArch[i] = newFile()
	}

	e.emitProcs(shared, funcs)
	for _, name := range e.releaseFuncs() {
		e.emitRelease(shared, name)
	}

	for _, entry := range funcs {
		frags := make([]*goFile, len(e.targets))
		everywhere := true
		for i := range e.targets {
			plan, ok := e.targets[i].Plans.Functions[entry.Name]
			if !ok {
				everywhere = false
				continue
			}
			w := &fnWriter{e: e, t: &e.targets[i], entry: entry, plan: plan, f: newFile()}
			w.write()
			frags[i] = w.f
		}
		if everywhere && sameText(frags) {
			shared.merge(frags[0])
			continue
		}
		for i, frag := range frags {
			if frag != nil {
				perArch[i].merge(frag)
			}
		}
	}

	e.render(e.fileName("funcs", ""), "", shared)
	for i, f := range perArch {
		if !f.empty() {
			t := e.targets[i].Layout
			e.render(e.fileName("funcs", t.GOARCH), t.Profile, f)
		}
	}
}

func sameText(frags []*goFile) bool {
	for _, f := range frags[1:] {
		if f.buf.String() != frags[0].buf.String() {
			return false
		}
	}
	return true
}

func (e *Emitter) emitProcs(f *goFile, funcs []*catalog.Entry) {
	rt := e.rt(f)
	var dlls []string
	seen := make(map[string]bool)
	for _, entry := range funcs {
		if dll := entry.Function.DLL; !seen[dll] {
			seen[dll] = true
			dlls = append(dlls, dll)
		}
	}
	f.p("\nvar (\n")
	for _, dll := range dlls {
		f.p("\t%s = %s.NewDLL(%q)\n", dllVar(dll), rt, dll)
	}
	f.p("\n")
	for _, entry := range funcs {
		f.p("\t%s = %s.NewProc(%q)\n", procName(entry.Name), dllVar(entry.Function.DLL), entry.Name)
	}
	f.p(")\n")
}

// emitRelease writes releaseX(v uintptr) error, which hands one resource back
// to the single-argument function X.
func (e *Emitter) emitRelease(f *goFile, name string) {
	entry, ok := e.model.Entry(name)
	if !ok || entry.Kind != catalog.KindFunction || len(entry.Function.Params) != 1 {
		e.errorf(diag.EmtInconsistent, name, "release function must take exactly one argument")
		return
	}
	fn := entry.Function
	rt := e.rt(f)
	f.p("\nfunc %s(v uintptr) error {\n", releaseName(name))
	if fn.Failure == catalog.FailNone {
		f.p("\t%s.Call(v)\n\treturn nil\n}\n", procName(name))
		return
	}
	c := failCheck(rt, name, fn.Failure, fn.LastError)
	f.p("\t%s := %s.Call(v)\n", c.lhs(), procName(name))
	f.p("\tif %s {\n\t\treturn %s\n\t}\n\treturn nil\n}\n", c.cond, c.err)
}

// check is the failure test of one call.
type check struct {
	cond   string
	err    string
	usesE1 bool
}

func (c check) lhs() string {
	if c.usesE1 {
		return "r1, _, e1"
	}
	return "r1, _, _"
}

func failCheck(rt, name string, failure catalog.Failure, mode catalog.LastErrorMode) check {
	var c check
	switch failure {
	case catalog.FailZero, catalog.FailNull:
		c.cond = "r1 == 0"
	case catalog.FailInvalidHandle:
		c.cond = "r1 == ^uintptr(0)"
	case catalog.FailNonzero:
		c.cond = "r1 != 0"
	case catalog.FailHResult:
		c.cond = "int32(r1) < 0"
		c.err = fmt.Sprintf("%s.HResultError(%q, r1)", rt, name)
		return c
	case catalog.FailStatus:
		c.cond = "uint32(r1) != 0"
		c.err = fmt.Sprintf("%s.StatusError(%q, r1)", rt, name)
		return c
	default:
		return c
	}
	switch mode {
	case catalog.LastErrorSet:
		c.err = fmt.Sprintf("%s.LastError(%q, e1)", rt, name)
		c.usesE1 = true
	case catalog.LastErrorIfSet:
		c.cond += " && e1 != 0"
		c.err = fmt.Sprintf("%s.LastError(%q, e1)", rt, name)
		c.usesE1 = true
	default:
		c.err = fmt.Sprintf("%s.Failed(%q)", rt, name)
	}
	return c
}

// fnWriter renders the wrapper of one function for one profile.
type fnWriter struct {
	e     *Emitter
	t     *Target
	entry *catalog.Entry
	plan  *marshal.Plan
	f     *goFile
	rt    string

	names   map[string]string // native parameter name to Go name
	taken   map[string]bool
	regs    map[string]string // retained callback to its result name
	results []string
	body    strings.Builder
	depth   int
}

func (w *fnWriter) line(format string, args ...any) {
	w.body.WriteString(strings.Repeat("\t", w.depth))
	fmt.Fprintf(&w.body, format, args...)
	w.body.WriteByte('\n')
}

func (w *fnWriter) fresh(base string) string {
	name := base
	for w.taken[name] {
		name += "_"
	}
	w.taken[name] = true
	return name
}

func (w *fnWriter) local(i int, suffix string) string {
	return fmt.Sprintf("_p%d%s", i, suffix)
}

func (w *fnWriter) write() {
	w.rt = w.e.rt(w.f)
	w.names = make(map[string]string, len(w.plan.Params))
	w.taken = map[string]bool{"ret": true, "err": true, "scope": true}
	w.regs = make(map[string]string)
	for _, pp := range w.plan.Params {
		w.names[pp.Name] = w.fresh(localName(pp.Name))
	}

	sig := w.signature()
	w.depth = 1
	w.prologue()
	if buf := w.bufferParam(); buf != nil {
		w.bufferCall(buf)
	} else {
		w.directCall()
	}

	fn := w.entry.Function
	w.e.doc(w.f, w.entry, fmt.Sprintf("calls %s in %s.", w.entry.Name, fn.DLL))
	w.f.p("func %s {\n%s}\n", sig, w.body.String())
}

// signature returns "Name(params) (results)" and records result names.
func (w *fnWriter) signature() string {
	var params, results []string
	if w.plan.Scoped {
		params = append(params, "scope *"+w.rt+".Scope")
	}
	for i := range w.plan.Params {
		pp := &w.plan.Params[i]
		if pp.Strategy.Hidden() || pp.Strategy.Result() {
			continue
		}
		params = append(params, w.names[pp.Name]+" "+w.paramType(pp))
	}

	if w.plan.Return.Exposed {
		results = append(results, "ret "+w.returnType())
	}
	for i := range w.plan.Params {
		pp := &w.plan.Params[i]
		if pp.Strategy.Result() {
			results = append(results, w.names[pp.Name]+" "+w.resultType(pp))
		}
	}
	for _, pp := range w.plan.Retained() {
		name := w.fresh(w.names[pp.Name] + "Reg")
		w.regs[pp.Name] = name
		results = append(results, name+" *"+w.rt+".Registration")
	}
	if w.plan.Fallible {
		results = append(results, "err error")
	}
	w.results = results

	out := w.entry.Name + "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		out += " (" + strings.Join(results, ", ") + ")"
	}
	return out
}

func (w *fnWriter) paramType(pp *marshal.ParamPlan) string {
	e := w.e
	switch pp.Strategy {
	case marshal.Opaque:
		if pp.Type.Kind == catalog.TPrim {
			w.f.use("unsafe")
			return "unsafe.Pointer"
		}
	case marshal.StructIn, marshal.StructInOut, marshal.ScalarInOut:
		return "*" + e.goType(*pp.Underlying.Elem, useField)
	case marshal.StringIn:
		if pp.Optional {
			return "*string"
		}
		return "string"
	case marshal.Callback:
		return e.goType(pp.Type, useParam)
	}
	return e.goType(pp.Type, useField)
}

func (w *fnWriter) resultType(pp *marshal.ParamPlan) string {
	switch pp.Strategy {
	case marshal.StringOutBuffer, marshal.StringCalleeAlloc:
		return "string"
	}
	return w.e.goType(*pp.Underlying.Elem, useField)
}

func (w *fnWriter) returnType() string {
	r := w.plan.Return
	switch r.Strategy {
	case marshal.StringReturn:
		return "string"
	case marshal.Opaque:
		if r.Type.Kind == catalog.TPrim {
			return "uintptr"
		}
	}
	return w.e.goType(r.Type, useField)
}

// failReturn ends the wrapper with err set to expr.
func (w *fnWriter) failReturn(expr string) {
	if !w.plan.Fallible {
		w.line("panic(%s)", expr)
		return
	}
	w.line("err = %s", expr)
	w.line("return")
}

func (w *fnWriter) prologue() {
	rt := w.rt
	if w.plan.Scoped {
		w.line("if scope == nil {")
		w.depth++
		w.failReturn(rt + ".ErrNilScope")
		w.depth--
		w.line("}")
	}
	for i := range w.plan.Params {
		pp := &w.plan.Params[i]
		name := w.names[pp.Name]
		switch pp.Strategy {
		case marshal.StringIn:
			ptr, conv := "*uint16", "UTF16PtrFromString"
			if pp.Underlying.Enc == catalog.EncANSI {
				ptr, conv = "*byte", "ANSIPtrFromString"
			}
			if pp.Optional {
				conv = strings.Replace(conv, "PtrFromString", "Ptr", 1)
				conv = "Optional" + conv
			}
			w.line("var %s %s", w.local(i, ""), ptr)
			w.line("%s, err = %s.%s(%s)", w.local(i, ""), rt, conv, name)
			w.line("if err != nil {")
			w.line("\treturn")
			w.line("}")
		case marshal.Callback:
			w.registerCallback(i, pp)
		case marshal.StructIn, marshal.StructInOut:
			if sf := pp.SizeField; sf != "" {
				w.line("if %s != nil {", name)
				w.line("\t%s", w.setSize(name, pp, sf, "*"+name))
				w.line("}")
			}
		case marshal.StructOut:
			if sf := pp.SizeField; sf != "" {
				w.line("%s", w.setSize(name, pp, sf, name))
			}
		case marshal.StructByValue:
			w.f.use("unsafe")
			if len(pp.Slots) == 1 && pp.Slots[0].Kind == marshal.SlotStructRef {
				w.line("%s := %s", w.local(i, ""), name)
			} else {
				w.line("%s := %s.StructWords(unsafe.Pointer(&%s), %d, %d)", w.local(i, ""), rt, name, pp.StructBytes, w.t.Layout.PtrSize)
			}
		case marshal.StringCalleeAlloc:
			ptr := "*uint16"
			if w.stringEnc(pp) == catalog.EncANSI {
				ptr = "*byte"
			}
			w.line("var %s %s", w.local(i, ""), ptr)
		}
		if splits(pp) {
			v := fmt.Sprintf("uint64(%s)", name)
			if pp.Underlying.Kind == catalog.TPrim && pp.Underlying.Prim == catalog.PrimF64 {
				w.f.use("math")
				v = fmt.Sprintf("math.Float64bits(float64(%s))", name)
			}
			w.line("%s, %s := %s.SplitU64(%s)", w.local(i, "lo"), w.local(i, "hi"), rt, v)
		}
	}
}

func splits(pp *marshal.ParamPlan) bool {
	for _, s := range pp.Slots {
		if s.Kind == marshal.SlotLow {
			return true
		}
	}
	return false
}

func (w *fnWriter) registerCallback(i int, pp *marshal.ParamPlan) {
	cb := w.e.underlying(pp.Type)
	if w.e.namedKind(cb) != catalog.KindCallback {
		w.e.errorf(diag.EmtInconsistent, w.entry.Name, "parameter %s is not a callback type", pp.Name)
		return
	}
	name := w.names[pp.Name]
	reg := w.local(i, "")
	w.line("var %s *%s.Registration", reg, w.rt)
	if pp.Optional {
		w.line("if %s != nil {", name)
		w.depth++
	}
	w.line("%s, err = %s.Register(%s)", reg, registryName(cb.Name), name)
	w.line("if err != nil {")
	w.line("\treturn")
	w.line("}")
	if pp.Optional {
		w.depth--
		w.line("}")
	}
	if pp.Retained {
		w.line("defer func() {")
		w.line("\tif err != nil {")
		w.line("\t\t%s.Release()", reg)
		w.line("\t}")
		w.line("}()")
		return
	}
	w.line("defer %s.Release()", reg)
}

func (w *fnWriter) setSize(name string, pp *marshal.ParamPlan, field, value string) string {
	w.f.use("unsafe")
	agg := w.e.aggregateOf(*pp.Underlying.Elem)
	typ := "uint32"
	if agg != nil {
		for _, fd := range agg.Fields {
			if fd.Name == field {
				typ = w.e.goType(fd.Type, useField)
			}
		}
	}
	size := fmt.Sprintf("%s(unsafe.Sizeof(%s))", typ, value)
	if l, ok := w.t.Layouts[pp.Struct]; ok {
		for _, fl := range l.Fields {
			if fl.Name == field && fl.Raw {
				return fmt.Sprintf("%s.Set%s(%s)", name, exportName(field), size)
			}
		}
	}
	return fmt.Sprintf("%s.%s = %s", name, exportName(field), size)
}

func (w *fnWriter) stringEnc(pp *marshal.ParamPlan) catalog.Encoding {
	u := pp.Underlying
	for u.Kind == catalog.TPointer {
		u = *u.Elem
	}
	return w.e.underlying(u).Enc
}

func (w *fnWriter) bufferParam() *marshal.ParamPlan {
	var out *marshal.ParamPlan
	for i := range w.plan.Params {
		if w.plan.Params[i].Strategy != marshal.StringOutBuffer {
			continue
		}
		if out != nil {
			w.e.errorf(diag.EmtInconsistent, w.entry.Name, "more than one buffered string output")
			return out
		}
		out = &w.plan.Params[i]
	}
	return out
}

// args renders the native argument list. buf names the slice a buffered
// output is passed in and sizePtr the local holding an in-out size.
func (w *fnWriter) args(buf, sizePtr string) string {
	var out []string
	for i := range w.plan.Params {
		pp := &w.plan.Params[i]
		name := w.names[pp.Name]
		for _, s := range pp.Slots {
			out = append(out, w.slotArg(i, pp, name, s, buf, sizePtr))
		}
	}
	return strings.Join(out, ", ")
}

func (w *fnWriter) slotArg(i int, pp *marshal.ParamPlan, name string, s marshal.Slot, buf, sizePtr string) string {
	switch s.Kind {
	case marshal.SlotLow:
		return w.local(i, "lo")
	case marshal.SlotHigh:
		return w.local(i, "hi")
	case marshal.SlotStructWord:
		return fmt.Sprintf("%s[%d]", w.local(i, ""), s.Word)
	case marshal.SlotStructRef:
		w.f.use("unsafe")
		return fmt.Sprintf("uintptr(unsafe.Pointer(&%s))", w.local(i, ""))
	case marshal.SlotFloat:
		w.f.use("math")
		if pp.Underlying.Prim == catalog.PrimF32 {
			return fmt.Sprintf("uintptr(math.Float32bits(float32(%s)))", name)
		}
		return fmt.Sprintf("uintptr(math.Float64bits(float64(%s)))", name)
	}

	switch pp.Strategy {
	case marshal.StructOut, marshal.ScalarOut:
		w.f.use("unsafe")
		return fmt.Sprintf("uintptr(unsafe.Pointer(&%s))", name)
	case marshal.StructIn, marshal.StructInOut, marshal.ScalarInOut:
		w.f.use("unsafe")
		return fmt.Sprintf("uintptr(unsafe.Pointer(%s))", name)
	case marshal.StringIn:
		w.f.use("unsafe")
		return fmt.Sprintf("uintptr(unsafe.Pointer(%s))", w.local(i, ""))
	case marshal.StringCalleeAlloc:
		w.f.use("unsafe")
		return fmt.Sprintf("uintptr(unsafe.Pointer(&%s))", w.local(i, ""))
	case marshal.StringOutBuffer:
		w.f.use("unsafe")
		return fmt.Sprintf("uintptr(unsafe.Pointer(unsafe.SliceData(%s)))", buf)
	case marshal.Callback:
		return w.local(i, "") + ".Entry()"
	case marshal.BufferSize:
		if sizePtr != "" {
			w.f.use("unsafe")
			return fmt.Sprintf("uintptr(unsafe.Pointer(&%s))", sizePtr)
		}
		return fmt.Sprintf("uintptr(len(%s))", buf)
	case marshal.StructSize:
		w.f.use("unsafe")
		return fmt.Sprintf("unsafe.Sizeof(%s{})", pp.Struct)
	}
	return fmt.Sprintf("uintptr(%s)", name)
}

// callLHS picks the names the call results are bound to.
func (w *fnWriter) callLHS(usesR1, usesR2, usesE1 bool) string {
	if !usesR1 && !usesR2 && !usesE1 {
		return ""
	}
	pick := func(use bool, name string) string {
		if use {
			return name
		}
		return "_"
	}
	return pick(usesR1, "r1") + ", " + pick(usesR2, "r2") + ", " + pick(usesE1, "e1") + " := "
}

func (w *fnWriter) failure() check {
	return failCheck(w.rt, w.entry.Name, w.plan.Failure, w.plan.LastError)
}

func (w *fnWriter) directCall() {
	r := w.plan.Return
	c := w.failure()
	usesR1 := r.Exposed || c.cond != ""
	usesR2 := r.Exposed && r.Joined
	w.line("%s%s.Call(%s)", w.callLHS(usesR1, usesR2, c.usesE1), procName(w.entry.Name), w.args("", ""))
	if r.Exposed {
		w.line("ret = %s", w.retValue())
	}
	if c.cond != "" {
		w.line("if %s {", c.cond)
		w.depth++
		w.failReturn(c.err)
		w.depth--
		w.line("}")
	}
	w.afterSuccess()
	w.line("return")
}

func (w *fnWriter) retValue() string {
	r := w.plan.Return
	switch {
	case r.Strategy == marshal.StringReturn:
		if r.Underlying.Enc == catalog.EncANSI {
			return fmt.Sprintf("%s.ANSIPtrToString(%s.PtrAt[byte](r1))", w.rt, w.rt)
		}
		return fmt.Sprintf("%s.UTF16PtrToString(%s.PtrAt[uint16](r1))", w.rt, w.rt)
	case r.Joined:
		return fmt.Sprintf("%s(%s.JoinU64(r1, r2))", w.returnType(), w.rt)
	}
	return fmt.Sprintf("%s(r1)", w.returnType())
}

// afterSuccess takes ownership of everything a successful call handed out.
func (w *fnWriter) afterSuccess() {
	for i := range w.plan.Params {
		pp := &w.plan.Params[i]
		name := w.names[pp.Name]
		switch {
		case pp.Strategy == marshal.StringCalleeAlloc:
			if pp.Release == "" {
				w.e.errorf(diag.EmtInconsistent, w.entry.Name, "parameter %s has no release function", pp.Name)
				continue
			}
			take := "TakeUTF16"
			if w.stringEnc(pp) == catalog.EncANSI {
				take = "TakeANSI"
			}
			w.line("%s, err = %s.%s(%s, %s)", name, w.rt, take, w.local(i, ""), releaseName(pp.Release))
			w.line("if err != nil {")
			w.line("\treturn")
			w.line("}")
		case pp.Strategy == marshal.ScalarOut && pp.Owned():
			w.deferRelease(w.local(i, "rel"), name, pp.Release)
		case pp.Strategy == marshal.Callback && pp.Retained:
			w.line("%s = %s", w.regs[pp.Name], w.local(i, ""))
		}
	}
	if r := w.plan.Return; r.Release != "" && r.Exposed {
		w.deferRelease("_rel", "ret", r.Release)
	}
}

func (w *fnWriter) deferRelease(local, value, release string) {
	w.line("%s := %s", local, value)
	w.line("scope.Defer(func() error { return %s(uintptr(%s)) })", releaseName(release), local)
}

func (w *fnWriter) bufferCall(buf *marshal.ParamPlan) {
	b := buf.Buffer
	rt := w.rt
	name := w.names[buf.Name]
	elem, suffix := "uint16", "UTF16"
	if w.stringEnc(buf) == catalog.EncANSI {
		elem, suffix = "byte", "ANSI"
	}

	var size *marshal.ParamPlan
	for i := range w.plan.Params {
		if w.plan.Params[i].Strategy == marshal.BufferSize && w.plan.Params[i].SizeFor == buf.Name {
			size = &w.plan.Params[i]
		}
	}
	sizePtr := ""
	if size != nil && size.Underlying.Kind == catalog.TPointer {
		sizePtr = "_n"
	}

	c := w.failure()
	usesR1 := c.cond != "" || b.Kind == catalog.BufferQuery || b.ReturnsLength
	call := fmt.Sprintf("%s%s.Call(%s)", w.callLHS(usesR1, false, c.usesE1), procName(w.entry.Name), w.args("buf", sizePtr))

	switch b.Kind {
	case catalog.BufferQuery:
		w.line("%s, err = %s.Query%s(%t, func(buf []%s) (uint32, error) {", name, rt, suffix, b.IncludesNul, elem)
		w.depth++
		w.line("%s", call)
		if c.cond != "" {
			w.line("if %s {", c.cond)
			w.line("\treturn 0, %s", c.err)
			w.line("}")
		}
		w.line("return uint32(r1), nil")
		w.depth--
		w.line("})")
	case catalog.BufferFixed, catalog.BufferQueryFn:
		capacity := itoa(b.Capacity)
		if b.CapacityConst != "" {
			capacity = fmt.Sprintf("int(%s)", b.CapacityConst)
		}
		if b.Kind == catalog.BufferQueryFn {
			w.queryLength(b)
			capacity = "int(_len) + 1"
		}
		w.line("%s, err = %s.Fill%s(%s, func(buf []%s) error {", name, rt, suffix, capacity, elem)
		w.depth++
		if sizePtr != "" {
			w.line("%s := %s(len(buf))", sizePtr, w.e.goType(*size.Underlying.Elem, useField))
		}
		w.line("%s", call)
		if c.cond != "" {
			w.line("if %s {", c.cond)
			w.line("\treturn %s", c.err)
			w.line("}")
		}
		if b.ReturnsLength {
			w.line("if int(r1) >= len(buf) {")
			w.line("\treturn %s.LastError(%q, %s.ErrorInsufficientBuffer)", rt, w.entry.Name, rt)
			w.line("}")
		}
		w.line("return nil")
		w.depth--
		w.line("})")
	default:
		w.e.errorf(diag.EmtInconsistent, w.entry.Name, "parameter %s: buffer kind %s cannot be rendered", buf.Name, b.Kind)
		return
	}
	w.line("if err != nil {")
	w.line("\treturn")
	w.line("}")
	w.afterSuccess()
	w.line("return")
}

// queryLength calls the wrapper of the query function into _len.
func (w *fnWriter) queryLength(b *catalog.Buffer) {
	args := make([]string, len(b.QueryArgs))
	for i, a := range b.QueryArgs {
		args[i] = w.names[a]
	}
	call := fmt.Sprintf("%s(%s)", b.QueryFn, strings.Join(args, ", "))
	qp, ok := w.t.Plans.Functions[b.QueryFn]
	if !ok {
		w.e.errorf(diag.EmtInconsistent, w.entry.Name, "query function %s has no plan on %s", b.QueryFn, w.t.Layout.Profile)
		return
	}
	if !qp.Fallible {
		w.line("_len := %s", call)
		return
	}
	w.line("_len, err := %s", call)
	w.line("if err != nil {")
	w.line("\treturn")
	w.line("}")
}
