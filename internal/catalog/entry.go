package catalog

type Kind string

const (
	KindFunction Kind = "function"
	KindStruct   Kind = "struct"
	KindUnion    Kind = "union"
	KindCallback Kind = "callback"
	KindConstant Kind = "constant"
	KindAlias    Kind = "alias"
)

type Dir string

const (
	DirIn    Dir = "in"
	DirOut   Dir = "out"
	DirInOut Dir = "inout"
)

type CallConv string

const (
	Stdcall CallConv = "stdcall"
	Cdecl   CallConv = "cdecl"
)

// Ownership says which side releases a resource crossing the call.
type Ownership string

const (
	Borrowed    Ownership = "borrowed"
	CallerFrees Ownership = "caller"
	CalleeFrees Ownership = "callee"
)

// Failure is the documented sentinel that marks a failed call.
type Failure string

const (
	FailNone          Failure = "none"
	FailZero          Failure = "zero"
	FailNull          Failure = "null"
	FailInvalidHandle Failure = "invalid_handle" // INVALID_HANDLE_VALUE
	FailNonzero       Failure = "nonzero"
	FailHResult       Failure = "hresult" // negative HRESULT
	FailStatus        Failure = "status"  // return value is a Win32 error code
)

// LastErrorMode says how the thread's last-error value explains a failure.
type LastErrorMode string

const (
	LastErrorNone  LastErrorMode = ""
	LastErrorSet   LastErrorMode = "set"    // failure always sets it
	LastErrorIfSet LastErrorMode = "if_set" // sentinel is only a failure if it is nonzero
)

type BufferKind string

const (
	BufferFixed       BufferKind = "fixed"        // caller buffer of known capacity
	BufferQuery       BufferKind = "query"        // call with empty buffer returns the size, then fill
	BufferQueryFn     BufferKind = "query_fn"     // another function returns the length, then fill
	BufferCalleeAlloc BufferKind = "callee_alloc" // callee allocates, caller releases
)

// Buffer describes how a variable-length string output is obtained.
type Buffer struct {
	Kind          BufferKind `msgpack:"kind"`
	SizeParam     string     `msgpack:"size_param,omitempty"`
	Capacity      int        `msgpack:"capacity,omitempty"`
	CapacityConst string     `msgpack:"capacity_const,omitempty"`
	QueryFn       string     `msgpack:"query_fn,omitempty"`
	QueryArgs     []string   `msgpack:"query_args,omitempty"`

	// IncludesNul is set when reported sizes already count the terminator.
	IncludesNul bool `msgpack:"includes_nul,omitempty"`

	// ReturnsLength marks fixed buffers whose function returns the characters
	// written and silently truncates: a result filling the buffer is a failure.
	ReturnsLength bool `msgpack:"returns_length,omitempty"`
}

type Param struct {
	Name      string    `msgpack:"name"`
	Dir       Dir       `msgpack:"dir"`
	Type      TypeRef   `msgpack:"type"`
	Optional  bool      `msgpack:"optional,omitempty"`
	Ownership Ownership `msgpack:"ownership,omitempty"`
	Release   string    `msgpack:"release,omitempty"`
	Retained  bool      `msgpack:"retained,omitempty"`
	SizeOf    string    `msgpack:"size_of,omitempty"` // filled with the byte size of the named struct parameter
	Buffer    *Buffer   `msgpack:"buffer,omitempty"`
}

type Function struct {
	DLL       string        `msgpack:"dll"`
	CallConv  CallConv      `msgpack:"callconv"`
	Params    []Param       `msgpack:"params"`
	Returns   TypeRef       `msgpack:"returns"`
	Failure   Failure       `msgpack:"failure"`
	LastError LastErrorMode `msgpack:"last_error,omitempty"`
	Release   string        `msgpack:"release,omitempty"`
	Arch      []string      `msgpack:"arch,omitempty"` // GOARCH values the export exists on; empty means all
}

// Param returns the parameter called name.
func (f *Function) Param(name string) (int, *Param) {
	for i := range f.Params {
		if f.Params[i].Name == name {
			return i, &f.Params[i]
		}
	}
	return -1, nil
}

// AvailableOn reports whether the export exists for goarch.
func (f *Function) AvailableOn(goarch string) bool {
	if len(f.Arch) == 0 {
		return true
	}
	for _, a := range f.Arch {
		if a == goarch {
			return true
		}
	}
	return false
}

type Field struct {
	Name string  `msgpack:"name"`
	Type TypeRef `msgpack:"type"`
}

// Aggregate is the body of a struct or union.
type Aggregate struct {
	Fields    []Field        `msgpack:"fields"`
	Pack      int            `msgpack:"pack,omitempty"`
	SizeField string         `msgpack:"size_field,omitempty"`
	Sizes     map[string]int `msgpack:"sizes,omitempty"` // documented size per profile
}

type Callback struct {
	CallConv CallConv `msgpack:"callconv"`
	Params   []Param  `msgpack:"params"`
	Returns  TypeRef  `msgpack:"returns"`
}

type ConstForm string

const (
	ConstInt    ConstForm = "int"
	ConstString ConstForm = "string"
	ConstGUID   ConstForm = "guid"
)

type Constant struct {
	Type TypeRef   `msgpack:"type"`
	Form ConstForm `msgpack:"form"`
	Int  int64     `msgpack:"int,omitempty"`
	Text string    `msgpack:"text,omitempty"`
}

type Alias struct {
	Target TypeRef `msgpack:"target"`
}

// Entry is one catalog declaration. Exactly one of the body pointers is set,
// matching Kind (Aggregate serves both structs and unions).
type Entry struct {
	Name      string     `msgpack:"name"`
	Kind      Kind       `msgpack:"kind"`
	Doc       string     `msgpack:"doc,omitempty"`
	File      string     `msgpack:"file,omitempty"`
	Function  *Function  `msgpack:"function,omitempty"`
	Aggregate *Aggregate `msgpack:"aggregate,omitempty"`
	Callback  *Callback  `msgpack:"callback,omitempty"`
	Constant  *Constant  `msgpack:"constant,omitempty"`
	Alias     *Alias     `msgpack:"alias,omitempty"`
}

// Refs lists every entry name e depends on, in declaration order, possibly
// with repeats.
func (e *Entry) Refs() []string {
	var out []string
	params := func(ps []Param) {
		for _, p := range ps {
			out = p.Type.Refs(out)
			if p.Release != "" {
				out = append(out, p.Release)
			}
			if b := p.Buffer; b != nil {
				if b.QueryFn != "" {
					out = append(out, b.QueryFn)
				}
				if b.CapacityConst != "" {
					out = append(out, b.CapacityConst)
				}
			}
		}
	}
	switch e.Kind {
	case KindFunction:
		params(e.Function.Params)
		out = e.Function.Returns.Refs(out)
		if e.Function.Release != "" {
			out = append(out, e.Function.Release)
		}
	case KindStruct, KindUnion:
		for _, f := range e.Aggregate.Fields {
			out = f.Type.Refs(out)
		}
	case KindCallback:
		params(e.Callback.Params)
		out = e.Callback.Returns.Refs(out)
	case KindConstant:
		out = e.Constant.Type.Refs(out)
	case KindAlias:
		out = e.Alias.Target.Refs(out)
	}
	return out
}
