package emit

import (
	"fmt"
	"strconv"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/marshal"
)

// emitTypes writes the declarations that do not depend on the profile:
// aliases, callback signatures and constants.
func (e *Emitter) emitTypes() {
	f := newFile()
	for _, entry := range e.model.OfKind(catalog.KindAlias) {
		e.emitAlias(f, entry)
	}
	for _, entry := range e.model.OfKind(catalog.KindCallback) {
		e.emitCallbackType(f, entry)
	}
	e.emitConstants(f)
	e.render(e.fileName("types", ""), "", f)
}

func (e *Emitter) emitAlias(f *goFile, entry *catalog.Entry) {
	t := entry.Alias.Target
	switch e.namedKind(t) {
	case catalog.KindStruct, catalog.KindUnion, catalog.KindCallback:
		e.doc(f, entry, "is "+t.Name+".")
		f.p("type %s = %s\n", entry.Name, t.Name)
	default:
		e.doc(f, entry, "is the native "+entry.Name+" type.")
		f.p("type %s %s\n", entry.Name, e.goType(t, useField))
	}
}

func (e *Emitter) emitCallbackType(f *goFile, entry *catalog.Entry) {
	plan, ok := e.primary().Plans.Callbacks[entry.Name]
	if !ok {
		e.errorf(diag.EmtInconsistent, entry.Name, "callback has no plan for %s", e.primary().Layout.Profile)
		return
	}
	e.doc(f, entry, "is the Go form of the native "+entry.Name+" callback.")
	f.p("type %s func(", entry.Name)
	for i, pp := range plan.Params {
		if i > 0 {
			f.p(", ")
		}
		f.p("%s %s", localName(pp.Name), e.callbackArgType(&pp))
	}
	f.p(")")
	if !plan.Return.Type.IsVoid() {
		f.p(" %s", e.goType(plan.Return.Type, useField))
	}
	f.p("\n")
}

func (e *Emitter) callbackArgType(pp *marshal.ParamPlan) string {
	switch pp.Strategy {
	case marshal.Opaque:
		return "uintptr"
	case marshal.StringIn:
		return "string"
	case marshal.StructInOut, marshal.ScalarInOut:
		return "*" + e.goType(*pp.Underlying.Elem, useField)
	}
	return e.goType(pp.Type, useField)
}

func (e *Emitter) emitConstants(f *goFile) {
	var consts, guids []*catalog.Entry
	for _, entry := range e.model.OfKind(catalog.KindConstant) {
		if entry.Constant.Form == catalog.ConstGUID {
			guids = append(guids, entry)
		} else {
			consts = append(consts, entry)
		}
	}
	if len(consts) > 0 {
		f.p("\nconst (\n")
		for _, entry := range consts {
			c := entry.Constant
			if c.Form == catalog.ConstString {
				f.p("\t%s = %s\n", entry.Name, strconv.Quote(c.Text))
				continue
			}
			f.p("\t%s %s = %s\n", entry.Name, e.goType(c.Type, useField), e.intLiteral(entry))
		}
		f.p(")\n")
	}
	if len(guids) > 0 {
		f.p("\nvar (\n")
		for _, entry := range guids {
			if lit, ok := e.guidLiteral(entry); ok {
				f.p("\t%s = %s\n", entry.Name, lit)
			}
		}
		f.p(")\n")
	}
}

// intLiteral spells an integer constant so it converts to its Go type:
// negative values of unsigned types become complements and values past the
// signed range wrap.
func (e *Emitter) intLiteral(entry *catalog.Entry) string {
	c := entry.Constant
	v := c.Int
	u := e.underlying(c.Type)
	if u.Kind != catalog.TPrim {
		return strconv.FormatInt(v, 10)
	}
	if !u.Prim.IsSigned() && v < 0 {
		return fmt.Sprintf("^%s(%d)", e.goType(c.Type, useField), -v-1)
	}
	if bits := u.Prim.Size() * 8; u.Prim.IsSigned() && bits > 0 && bits < 64 && v >= int64(1)<<(bits-1) {
		v -= int64(1) << bits
	}
	if v >= 0x100 {
		return fmt.Sprintf("0x%X", v)
	}
	return strconv.FormatInt(v, 10)
}

func (e *Emitter) guidLiteral(entry *catalog.Entry) (string, bool) {
	c := entry.Constant
	g, err := catalog.ParseGUID(c.Text)
	if err != nil {
		e.errorf(diag.EmtInconsistent, entry.Name, "%v", err)
		return "", false
	}
	agg := e.aggregateOf(c.Type)
	if agg == nil || len(agg.Fields) != 4 {
		e.errorf(diag.EmtInconsistent, entry.Name, "GUID constant of type %s needs a four-field struct", c.Type)
		return "", false
	}
	fs := agg.Fields
	tail := ""
	for i, b := range g.Data4 {
		if i > 0 {
			tail += ", "
		}
		tail += fmt.Sprintf("0x%02X", b)
	}
	return fmt.Sprintf("%s{%s: 0x%08X, %s: 0x%04X, %s: 0x%04X, %s: %s{%s}}",
		e.goType(c.Type, useField),
		exportName(fs[0].Name), g.Data1,
		exportName(fs[1].Name), g.Data2,
		exportName(fs[2].Name), g.Data3,
		exportName(fs[3].Name), e.goType(fs[3].Type, useField), tail), true
}

func (e *Emitter) aggregateOf(t catalog.TypeRef) *catalog.Aggregate {
	u := e.underlying(t)
	if u.Kind != catalog.TNamed {
		return nil
	}
	entry, ok := e.model.Entry(u.Name)
	if !ok || entry.Aggregate == nil {
		return nil
	}
	return entry.Aggregate
}
