package emit

import (
	"fmt"
	"strings"

	"winapigen/internal/catalog"
	"winapigen/internal/marshal"
)

const callbackSlotsName = "callbackSlots"

// emitCallbacks writes one registry per callback type. Each registry slot owns
// a native entry point whose bridge converts the raw argument slots and calls
// the Go function registered in that slot.
func (e *Emitter) emitCallbacks() {
	entries := e.model.OfKind(catalog.KindCallback)
	if len(entries) == 0 {
		return
	}
	f := newFile()
	rt := e.rt(f)
	f.p("\n// %s is the number of callbacks of one type that can be registered at once.\n", callbackSlotsName)
	f.p("const %s = %d\n", callbackSlotsName, e.opts.CallbackSlots)
	for _, entry := range entries {
		plan, ok := e.primary().Plans.Callbacks[entry.Name]
		if !ok {
			continue
		}
		e.emitRegistry(f, rt, entry, plan)
	}
	e.render(e.fileName("callbacks", ""), "", f)
}

func (e *Emitter) emitRegistry(f *goFile, rt string, entry *catalog.Entry, plan *marshal.Plan) {
	conv := "Stdcall"
	if plan.CallConv == catalog.Cdecl {
		conv = "Cdecl"
	}
	raw := make([]string, len(plan.Params))
	args := make([]string, len(plan.Params))
	for i := range plan.Params {
		raw[i] = fmt.Sprintf("a%d", i)
		args[i] = e.callbackArg(f, rt, &plan.Params[i], raw[i])
	}
	sig := ""
	if len(raw) > 0 {
		sig = strings.Join(raw, ", ") + " uintptr"
	}
	call := fmt.Sprintf("fn(%s)", strings.Join(args, ", "))

	reg := registryName(entry.Name)
	f.p("\nvar %s = %s.NewRegistry[%s](%q, %s, %s.%s, func(r *%s.Registry[%s], slot int) any {\n",
		reg, rt, entry.Name, entry.Name, callbackSlotsName, rt, conv, rt, entry.Name)
	f.p("\treturn func(%s) uintptr {\n", sig)
	f.p("\t\tfn, ok := r.Lookup(slot)\n")
	f.p("\t\tif !ok {\n\t\t\treturn 0\n\t\t}\n")
	if plan.Return.Type.IsVoid() {
		f.p("\t\t%s\n\t\treturn 0\n", call)
	} else {
		f.p("\t\treturn uintptr(%s)\n", call)
	}
	f.p("\t}\n})\n")
}

// callbackArg converts one raw slot to the Go argument.
func (e *Emitter) callbackArg(f *goFile, rt string, pp *marshal.ParamPlan, raw string) string {
	switch pp.Strategy {
	case marshal.Opaque:
		return raw
	case marshal.StringIn:
		if pp.Underlying.Enc == catalog.EncANSI {
			return fmt.Sprintf("%s.ANSIAt(%s)", rt, raw)
		}
		return fmt.Sprintf("%s.UTF16At(%s)", rt, raw)
	case marshal.StructInOut, marshal.ScalarInOut:
		return fmt.Sprintf("%s.PtrAt[%s](%s)", rt, e.goType(*pp.Underlying.Elem, useField), raw)
	}
	return fmt.Sprintf("%s(%s)", e.goType(pp.Type, useField), raw)
}
