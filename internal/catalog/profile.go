package catalog

// StructPass is the rule for passing a struct by value.
type StructPass string

const (
	PassWin64   StructPass = "win64"   // 1, 2, 4 or 8 bytes in one slot, else by hidden reference
	PassAAPCS64 StructPass = "aapcs64" // up to 16 bytes in one or two slots, else by hidden reference
	PassStack   StructPass = "stack"   // copied into consecutive stack slots
)

// Profile is one supported platform/architecture ABI.
type Profile struct {
	Name         string     `msgpack:"name"`
	GOARCH       string     `msgpack:"goarch"`
	PtrSize      int        `msgpack:"ptr_size"`
	PtrAlign     int        `msgpack:"ptr_align"`
	Int64Align   int        `msgpack:"int64_align"`    // native alignment of 8-byte scalars in aggregates
	GoInt64Align int        `msgpack:"go_int64_align"` // alignment Go gives them on this GOARCH
	DefaultPack  int        `msgpack:"default_pack"`
	StructPass   StructPass `msgpack:"struct_pass"`
	FloatArgs    bool       `msgpack:"float_args"` // floating point arguments reach the callee
}

// SlotSize is the width of one native argument slot.
func (p Profile) SlotSize() int { return p.PtrSize }
