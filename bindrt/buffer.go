package bindrt

import (
	"errors"
	"unsafe"

	"fortio.org/safecast"
)

// QueryUTF16 runs the two-call pattern: fill(nil) reports the required size
// in characters, then fill(buf) fills buf and reports the characters written
// without the terminator. includesNul says whether the reported size counts
// the terminator already.
func QueryUTF16(includesNul bool, fill func(buf []uint16) (uint32, error)) (string, error) {
	buf, n, err := query[uint16](includesNul, fill)
	if err != nil || buf == nil {
		return "", err
	}
	return UTF16ToString(buf[:n]), nil
}

// QueryANSI is QueryUTF16 for Windows-1252 buffers.
func QueryANSI(includesNul bool, fill func(buf []byte) (uint32, error)) (string, error) {
	buf, n, err := query[byte](includesNul, fill)
	if err != nil || buf == nil {
		return "", err
	}
	return ANSIToString(buf[:n]), nil
}

func query[T uint16 | byte](includesNul bool, fill func(buf []T) (uint32, error)) ([]T, int, error) {
	need, err := fill(nil)
	if err != nil {
		return nil, 0, err
	}
	if need == 0 {
		return nil, 0, nil
	}
	size, err := safecast.Conv[int](need)
	if err != nil {
		return nil, 0, err
	}
	if !includesNul {
		size++
	}
	buf := make([]T, size)
	got, err := fill(buf)
	if err != nil {
		return nil, 0, err
	}
	n, err := safecast.Conv[int](got)
	if err != nil {
		return nil, 0, err
	}
	if n >= len(buf) {
		return nil, 0, ErrSizeChanged
	}
	return buf, n, nil
}

// FillUTF16 hands fill a buffer of capacity characters and decodes it up to
// the first NUL.
func FillUTF16(capacity int, fill func(buf []uint16) error) (string, error) {
	if capacity <= 0 {
		return "", nil
	}
	buf := make([]uint16, capacity)
	if err := fill(buf); err != nil {
		return "", err
	}
	return UTF16ToString(buf), nil
}

// FillANSI is FillUTF16 for Windows-1252 buffers.
func FillANSI(capacity int, fill func(buf []byte) error) (string, error) {
	if capacity <= 0 {
		return "", nil
	}
	buf := make([]byte, capacity)
	if err := fill(buf); err != nil {
		return "", err
	}
	return ANSIToString(buf), nil
}

// TakeUTF16 copies a callee-allocated string and releases it. release runs
// exactly once for a non-nil p and never for nil.
func TakeUTF16(p *uint16, release func(uintptr) error) (string, error) {
	if p == nil {
		return "", nil
	}
	s := UTF16PtrToString(p)
	if err := release(addrOf(p)); err != nil {
		return s, errors.Join(errors.New("releasing callee-allocated string"), err)
	}
	return s, nil
}

// TakeANSI is TakeUTF16 for Windows-1252 strings.
func TakeANSI(p *byte, release func(uintptr) error) (string, error) {
	if p == nil {
		return "", nil
	}
	s := ANSIPtrToString(p)
	if err := release(addrOf(p)); err != nil {
		return s, errors.Join(errors.New("releasing callee-allocated string"), err)
	}
	return s, nil
}

func addrOf[T any](p *T) uintptr {
	return *(*uintptr)(unsafe.Pointer(&p))
}
