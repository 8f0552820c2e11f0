package emit

import (
	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/layout"
)

// emitStructs writes the struct and union declarations of one profile
// together with assertions that pin their size and field offsets.
func (e *Emitter) emitStructs(t *Target) {
	f := newFile()
	for _, name := range e.model.Order {
		entry := e.model.Entries[name]
		if entry.Kind != catalog.KindStruct && entry.Kind != catalog.KindUnion {
			continue
		}
		l, ok := t.Layouts[name]
		if !ok {
			e.errorf(diag.EmtInconsistent, name, "no layout for %s", t.Layout.Profile)
			continue
		}
		if l.Union {
			e.emitUnion(f, entry, l)
		} else {
			e.emitStruct(f, entry, l)
		}
	}
	if f.empty() {
		return
	}
	e.render(e.fileName("structs", t.Layout.GOARCH), t.Layout.Profile, f)
}

// structField is the Go spelling of one field.
type structField struct {
	goName string
	goType string
	fl     layout.FieldLayout
}

func (e *Emitter) structFields(entry *catalog.Entry, l layout.TypeLayout) []structField {
	out := make([]structField, 0, len(l.Fields))
	names := make(map[string]bool, 2*len(l.Fields))
	claim := func(name string) {
		if names[name] {
			e.errorf(diag.EmtNameCollision, entry.Name, "field or accessor %s is generated twice", name)
		}
		names[name] = true
	}
	for _, fl := range l.Fields {
		sf := structField{fl: fl, goType: e.goType(fl.Type, useField)}
		if fl.Raw {
			sf.goName = unexportName(fl.Name)
			claim(sf.goName)
			claim(exportName(fl.Name))
			claim("Set" + exportName(fl.Name))
		} else {
			sf.goName = exportName(fl.Name)
			claim(sf.goName)
			if e.charArray(fl.Type) != 0 {
				claim(sf.goName + "String")
			}
		}
		out = append(out, sf)
	}
	return out
}

// charArray returns the character prim of a [N]wchar or [N]char field, or
// zero.
func (e *Emitter) charArray(t catalog.TypeRef) catalog.Prim {
	if t.Kind != catalog.TArray {
		return 0
	}
	switch {
	case e.isChar(*t.Elem, catalog.PrimWChar):
		return catalog.PrimWChar
	case e.isChar(*t.Elem, catalog.PrimChar):
		return catalog.PrimChar
	}
	return 0
}

func (e *Emitter) emitStruct(f *goFile, entry *catalog.Entry, l layout.TypeLayout) {
	fields := e.structFields(entry, l)
	e.doc(f, entry, "is the native "+entry.Name+" struct.")
	f.p("type %s struct {\n", entry.Name)
	for _, sf := range fields {
		if sf.fl.Pad > 0 {
			f.p("\t_ [%d]byte\n", sf.fl.Pad)
		}
		if sf.fl.Raw {
			f.p("\t%s [%d]byte\n", sf.goName, sf.fl.Size)
		} else {
			f.p("\t%s %s\n", sf.goName, sf.goType)
		}
	}
	if l.TailPad > 0 {
		f.p("\t_ [%d]byte\n", l.TailPad)
	}
	f.p("}\n")

	rt := ""
	for _, sf := range fields {
		exported := exportName(sf.fl.Name)
		switch {
		case sf.fl.Raw:
			rt = e.rt(f)
			f.p("\n// %s returns the %s field.\n", exported, sf.fl.Name)
			f.p("func (s *%s) %s() %s { return %s.Load[%s](s.%s[:]) }\n", entry.Name, exported, sf.goType, rt, sf.goType, sf.goName)
			f.p("\n// Set%s sets the %s field.\n", exported, sf.fl.Name)
			f.p("func (s *%s) Set%s(v %s) { %s.Store(s.%s[:], v) }\n", entry.Name, exported, sf.goType, rt, sf.goName)
		case e.charArray(sf.fl.Type) == catalog.PrimWChar:
			rt = e.rt(f)
			f.p("\n// %sString decodes %s up to the first NUL.\n", sf.goName, sf.fl.Name)
			f.p("func (s *%s) %sString() string { return %s.UTF16ToString(s.%s[:]) }\n", entry.Name, sf.goName, rt, sf.goName)
		case e.charArray(sf.fl.Type) == catalog.PrimChar:
			rt = e.rt(f)
			f.p("\n// %sString decodes %s up to the first NUL.\n", sf.goName, sf.fl.Name)
			f.p("func (s *%s) %sString() string { return %s.ANSIToString(s.%s[:]) }\n", entry.Name, sf.goName, rt, sf.goName)
		}
	}

	f.use("unsafe")
	f.p("\nvar (\n")
	f.p("\t_ = [1]struct{}{}[unsafe.Sizeof(%s{})-%d]\n", entry.Name, l.Size)
	for _, sf := range fields {
		if sf.fl.Offset == 0 {
			continue
		}
		f.p("\t_ = [1]struct{}{}[unsafe.Offsetof(%s{}.%s)-%d]\n", entry.Name, sf.goName, sf.fl.Offset)
	}
	f.p(")\n")
}

// carrier is the zero-length array giving a union its alignment.
func carrier(align int) string {
	switch align {
	case 2:
		return "[0]uint16"
	case 4:
		return "[0]uint32"
	case 8, 16:
		return "[0]uint64"
	}
	return ""
}

func (e *Emitter) emitUnion(f *goFile, entry *catalog.Entry, l layout.TypeLayout) {
	seen := make(map[string]bool, 2*len(l.Fields))
	for _, fl := range l.Fields {
		for _, name := range []string{exportName(fl.Name), "Set" + exportName(fl.Name)} {
			if seen[name] {
				e.errorf(diag.EmtNameCollision, entry.Name, "accessor %s is generated twice", name)
			}
			seen[name] = true
		}
	}

	e.doc(f, entry, "is the native "+entry.Name+" union. Members are read and written through accessors.")
	f.p("type %s struct {\n", entry.Name)
	if c := carrier(l.Align); c != "" {
		f.p("\t_ %s\n", c)
	}
	f.p("\traw [%d]byte\n}\n", l.Size)

	rt := e.rt(f)
	for _, fl := range l.Fields {
		exported := exportName(fl.Name)
		typ := e.goType(fl.Type, useField)
		f.p("\n// %s reads the %s member.\n", exported, fl.Name)
		f.p("func (u *%s) %s() %s { return %s.Load[%s](u.raw[:]) }\n", entry.Name, exported, typ, rt, typ)
		f.p("\n// Set%s writes the %s member.\n", exported, fl.Name)
		f.p("func (u *%s) Set%s(v %s) { %s.Store(u.raw[:], v) }\n", entry.Name, exported, typ, rt)
	}

	f.use("unsafe")
	f.p("\nvar _ = [1]struct{}{}[unsafe.Sizeof(%s{})-%d]\n", entry.Name, l.Size)
}
