package emit

import (
	"go/token"
	"strings"
	"unicode"
	"unicode/utf8"

	"winapigen/internal/catalog"
)

// reserved names cannot be used for parameters because generated bodies
// refer to them.
var reserved = map[string]bool{
	"r1": true, "r2": true, "e1": true, "err": true, "scope": true, "buf": true,
	"bindrt": true, "unsafe": true, "math": true, "strings": true,
	"len": true, "cap": true, "nil": true, "true": true, "false": true, "int": true,
	"uint16": true, "uint32": true, "uint64": true, "uintptr": true, "string": true,
	"error": true, "float32": true, "float64": true, "byte": true, "any": true,
}

// localName maps a native parameter name to a safe Go identifier.
func localName(name string) string {
	if token.IsKeyword(name) || reserved[name] || strings.HasPrefix(name, "_") {
		return name + "_"
	}
	return name
}

// exportName upper-cases the first letter of a field name.
func exportName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// unexportName lower-cases the first letter of a field name.
func unexportName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	out := string(unicode.ToLower(r)) + name[size:]
	if token.IsKeyword(out) {
		out += "_"
	}
	return out
}

func registryName(callback string) string {
	return strings.ToLower(callback) + "Callbacks"
}

func procName(fn string) string { return "proc" + fn }

func releaseName(fn string) string { return "release" + fn }

// dllVar names the variable holding a DLL, e.g. modkernel32.
func dllVar(dll string) string {
	base := strings.TrimSuffix(strings.ToLower(dll), ".dll")
	var sb strings.Builder
	sb.WriteString("mod")
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

var primGo = map[catalog.Prim]string{
	catalog.PrimI8:     "int8",
	catalog.PrimU8:     "uint8",
	catalog.PrimI16:    "int16",
	catalog.PrimU16:    "uint16",
	catalog.PrimI32:    "int32",
	catalog.PrimU32:    "uint32",
	catalog.PrimI64:    "int64",
	catalog.PrimU64:    "uint64",
	catalog.PrimIsize:  "int",
	catalog.PrimUsize:  "uintptr",
	catalog.PrimF32:    "float32",
	catalog.PrimF64:    "float64",
	catalog.PrimBool:   "int32",
	catalog.PrimChar:   "byte",
	catalog.PrimWChar:  "uint16",
	catalog.PrimHandle: "uintptr",
	catalog.PrimPtr:    "uintptr",
}

// use says where a Go type appears; ptr and callbacks differ by position.
type use uint8

const (
	useField use = iota
	useParam
)

// goType spells t in generated code.
func (e *Emitter) goType(t catalog.TypeRef, u use) string {
	switch t.Kind {
	case catalog.TPrim:
		if t.Prim == catalog.PrimPtr && u == useParam {
			return "unsafe.Pointer"
		}
		return primGo[t.Prim]
	case catalog.TPointer:
		return "*" + e.goType(*t.Elem, useField)
	case catalog.TArray:
		return "[" + itoa(t.Len) + "]" + e.goType(*t.Elem, useField)
	case catalog.TString:
		if u == useParam {
			return "string"
		}
		if t.Enc == catalog.EncANSI {
			return "*byte"
		}
		return "*uint16"
	case catalog.TNamed:
		if u == useField && e.namedKind(t) == catalog.KindCallback {
			return "uintptr"
		}
		return t.Name
	}
	return "invalid"
}

func (e *Emitter) namedKind(t catalog.TypeRef) catalog.Kind {
	if t.Kind != catalog.TNamed {
		return ""
	}
	entry, ok := e.model.Entry(t.Name)
	if !ok {
		return ""
	}
	return entry.Kind
}

// underlying follows aliases inside the model.
func (e *Emitter) underlying(t catalog.TypeRef) catalog.TypeRef {
	for depth := 0; depth < 32 && t.Kind == catalog.TNamed; depth++ {
		entry, ok := e.model.Entry(t.Name)
		if !ok || entry.Kind != catalog.KindAlias {
			return t
		}
		t = entry.Alias.Target
	}
	return t
}

// isWideChar reports whether t is a wchar, directly or through aliases.
func (e *Emitter) isChar(t catalog.TypeRef, p catalog.Prim) bool {
	u := e.underlying(t)
	return u.Kind == catalog.TPrim && u.Prim == p
}
