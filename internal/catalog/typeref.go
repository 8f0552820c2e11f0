package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

type TypeKind uint8

const (
	TPrim TypeKind = iota
	TPointer
	TArray
	TString
	TNamed
)

type Prim uint8

const (
	PrimVoid Prim = iota
	PrimI8
	PrimU8
	PrimI16
	PrimU16
	PrimI32
	PrimU32
	PrimI64
	PrimU64
	PrimIsize
	PrimUsize
	PrimF32
	PrimF64
	PrimBool // 32-bit native BOOL
	PrimChar
	PrimWChar
	PrimHandle
	PrimPtr // opaque pointer
)

var primNames = [...]string{
	PrimVoid:   "void",
	PrimI8:     "i8",
	PrimU8:     "u8",
	PrimI16:    "i16",
	PrimU16:    "u16",
	PrimI32:    "i32",
	PrimU32:    "u32",
	PrimI64:    "i64",
	PrimU64:    "u64",
	PrimIsize:  "isize",
	PrimUsize:  "usize",
	PrimF32:    "f32",
	PrimF64:    "f64",
	PrimBool:   "bool",
	PrimChar:   "char",
	PrimWChar:  "wchar",
	PrimHandle: "handle",
	PrimPtr:    "ptr",
}

var primByName = func() map[string]Prim {
	m := make(map[string]Prim, len(primNames))
	for p, name := range primNames {
		m[name] = Prim(p)
	}
	return m
}()

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "prim(" + strconv.Itoa(int(p)) + ")"
}

// Size returns the byte size of fixed-size primitives and 0 for the ones that
// depend on the pointer width (isize, usize, handle, ptr) or have none (void).
func (p Prim) Size() int {
	switch p {
	case PrimI8, PrimU8, PrimChar:
		return 1
	case PrimI16, PrimU16, PrimWChar:
		return 2
	case PrimI32, PrimU32, PrimF32, PrimBool:
		return 4
	case PrimI64, PrimU64, PrimF64:
		return 8
	}
	return 0
}

// PointerSized reports whether the size follows the target pointer width.
func (p Prim) PointerSized() bool {
	switch p {
	case PrimIsize, PrimUsize, PrimHandle, PrimPtr:
		return true
	}
	return false
}

func (p Prim) IsFloat() bool { return p == PrimF32 || p == PrimF64 }

func (p Prim) IsSigned() bool {
	switch p {
	case PrimI8, PrimI16, PrimI32, PrimI64, PrimIsize, PrimBool:
		return true
	}
	return false
}

type Encoding uint8

const (
	EncUTF16 Encoding = iota // wstr, native wide strings
	EncANSI                  // astr, Windows-1252 code page
)

// TypeRef is a parsed catalog type expression.
//
//	i32 u64 handle ...   primitive
//	*T                   pointer
//	[N]T                 fixed array
//	wstr astr            NUL-terminated native string pointer
//	NAME                 reference to another catalog entry
type TypeRef struct {
	Kind TypeKind `msgpack:"k"`
	Prim Prim     `msgpack:"p,omitempty"`
	Elem *TypeRef `msgpack:"e,omitempty"`
	Len  int      `msgpack:"l,omitempty"`
	Enc  Encoding `msgpack:"c,omitempty"`
	Name string   `msgpack:"n,omitempty"`
}

func PrimType(p Prim) TypeRef       { return TypeRef{Kind: TPrim, Prim: p} }
func Named(name string) TypeRef     { return TypeRef{Kind: TNamed, Name: name} }
func PointerTo(t TypeRef) TypeRef   { return TypeRef{Kind: TPointer, Elem: &t} }
func StringOf(enc Encoding) TypeRef { return TypeRef{Kind: TString, Enc: enc} }

func ArrayOf(n int, t TypeRef) TypeRef {
	return TypeRef{Kind: TArray, Len: n, Elem: &t}
}

func (t TypeRef) IsVoid() bool { return t.Kind == TPrim && t.Prim == PrimVoid }

func (t TypeRef) String() string {
	switch t.Kind {
	case TPrim:
		return t.Prim.String()
	case TPointer:
		return "*" + t.Elem.String()
	case TArray:
		return "[" + strconv.Itoa(t.Len) + "]" + t.Elem.String()
	case TString:
		if t.Enc == EncANSI {
			return "astr"
		}
		return "wstr"
	case TNamed:
		return t.Name
	}
	return "?"
}

// Refs appends the entry names t refers to.
func (t TypeRef) Refs(dst []string) []string {
	switch t.Kind {
	case TNamed:
		return append(dst, t.Name)
	case TPointer, TArray:
		if t.Elem != nil {
			return t.Elem.Refs(dst)
		}
	}
	return dst
}

// Equal compares structurally.
func (t TypeRef) Equal(o TypeRef) bool {
	if t.Kind != o.Kind || t.Prim != o.Prim || t.Len != o.Len || t.Enc != o.Enc || t.Name != o.Name {
		return false
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == o.Elem
	}
	return t.Elem.Equal(*o.Elem)
}

func ParseTypeRef(s string) (TypeRef, error) {
	src := s
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeRef{}, fmt.Errorf("empty type")
	}
	switch {
	case strings.HasPrefix(s, "*"):
		elem, err := ParseTypeRef(s[1:])
		if err != nil {
			return TypeRef{}, err
		}
		return PointerTo(elem), nil
	case strings.HasPrefix(s, "["):
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return TypeRef{}, fmt.Errorf("%q: unterminated array length", src)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s[1:end]))
		if err != nil || n <= 0 {
			return TypeRef{}, fmt.Errorf("%q: array length must be a positive integer", src)
		}
		elem, err := ParseTypeRef(s[end+1:])
		if err != nil {
			return TypeRef{}, err
		}
		if elem.IsVoid() {
			return TypeRef{}, fmt.Errorf("%q: array of void", src)
		}
		return ArrayOf(n, elem), nil
	case s == "wstr":
		return StringOf(EncUTF16), nil
	case s == "astr":
		return StringOf(EncANSI), nil
	}
	if p, ok := primByName[s]; ok {
		return PrimType(p), nil
	}
	if !isIdent(s) {
		return TypeRef{}, fmt.Errorf("%q: not a type name", src)
	}
	return Named(s), nil
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
