package marshal

// Strategy is how one value crosses the native boundary.
type Strategy uint8

const (
	Void Strategy = iota
	Scalar
	Float
	Handle
	Opaque
	StructIn
	StructOut
	StructInOut
	StructByValue
	ScalarOut
	ScalarInOut
	StringIn
	StringOutBuffer
	StringCalleeAlloc
	StringReturn
	Callback
	BufferSize
	StructSize
)

var strategyNames = [...]string{
	Void:              "void",
	Scalar:            "scalar",
	Float:             "float",
	Handle:            "handle",
	Opaque:            "opaque",
	StructIn:          "struct-in",
	StructOut:         "struct-out",
	StructInOut:       "struct-inout",
	StructByValue:     "struct-by-value",
	ScalarOut:         "scalar-out",
	ScalarInOut:       "scalar-inout",
	StringIn:          "string-in",
	StringOutBuffer:   "string-out-buffer",
	StringCalleeAlloc: "string-callee-alloc",
	StringReturn:      "string-return",
	Callback:          "callback",
	BufferSize:        "buffer-size",
	StructSize:        "struct-size",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "strategy?"
}

// Hidden strategies are filled in by the wrapper and never appear in the Go
// signature.
func (s Strategy) Hidden() bool {
	return s == BufferSize || s == StructSize
}

// Result strategies surface as a wrapper result instead of a parameter.
func (s Strategy) Result() bool {
	switch s {
	case StructOut, ScalarOut, StringOutBuffer, StringCalleeAlloc:
		return true
	}
	return false
}

// SlotKind says what one native argument slot carries.
type SlotKind uint8

const (
	SlotWord       SlotKind = iota // the whole value
	SlotLow                        // low 32 bits of a 64-bit value
	SlotHigh                       // high 32 bits of a 64-bit value
	SlotFloat                      // IEEE bits of a float
	SlotStructWord                 // one word of a struct copied by value
	SlotStructRef                  // address of a caller-owned copy
)

func (k SlotKind) String() string {
	switch k {
	case SlotWord:
		return "word"
	case SlotLow:
		return "low"
	case SlotHigh:
		return "high"
	case SlotFloat:
		return "float"
	case SlotStructWord:
		return "struct-word"
	case SlotStructRef:
		return "struct-ref"
	}
	return "slot?"
}

// Slot is one native argument slot of a lowered parameter.
type Slot struct {
	Kind SlotKind
	Word int // index for SlotStructWord
}
