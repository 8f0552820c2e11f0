package bindrt

import (
	"unsafe"

	"fortio.org/safecast"
)

// Load reads a T from raw, which backs a field Go cannot align or a union
// member.
func Load[T any](raw []byte) (v T) {
	n := int(unsafe.Sizeof(v))
	if len(raw) < n {
		panic("bindrt: Load from short buffer")
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), n), raw)
	return v
}

// Store writes v into raw.
func Store[T any](raw []byte, v T) {
	n := int(unsafe.Sizeof(v))
	if len(raw) < n {
		panic("bindrt: Store to short buffer")
	}
	copy(raw, unsafe.Slice((*byte)(unsafe.Pointer(&v)), n))
}

// StructWords copies the size bytes at p into argument slots of width bytes,
// zero-filling the last slot.
func StructWords(p unsafe.Pointer, size, width int) []uintptr {
	if width != 4 && width != 8 {
		panic("bindrt: slot width must be 4 or 8")
	}
	n := (size + width - 1) / width
	words := make([]uintptr, n)
	src := unsafe.Slice((*byte)(p), size)
	for i := range words {
		var w uint64
		for j := 0; j < width; j++ {
			at := i*width + j
			if at >= size {
				break
			}
			w |= uint64(src[at]) << (8 * j)
		}
		words[i] = uintptr(w)
	}
	return words
}

// PtrAt converts a native address received as an argument slot.
func PtrAt[T any](addr uintptr) *T {
	return *(**T)(unsafe.Pointer(&addr))
}

// JoinU64 joins the halves of a 64-bit return value on 32-bit targets.
func JoinU64(lo, hi uintptr) uint64 {
	return uint64(uint32(lo)) | uint64(uint32(hi))<<32
}

// SplitU64 splits v into two 32-bit argument slots, low half first.
func SplitU64(v uint64) (lo, hi uintptr) {
	return uintptr(uint32(v)), uintptr(uint32(v >> 32))
}

// Len converts a buffer length to the uint32 most Windows APIs take.
func Len(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic("bindrt: buffer length overflows uint32")
	}
	return v
}
