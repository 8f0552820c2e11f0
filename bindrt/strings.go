package bindrt

import (
	"errors"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"

	"golang.org/x/text/encoding/charmap"
)

var (
	ErrNulInString = errors.New("string contains NUL")
	ErrInvalidUTF8 = errors.New("string is not valid UTF-8")
)

// UTF16FromString encodes s as NUL-terminated UTF-16.
func UTF16FromString(s string) ([]uint16, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, ErrNulInString
	}
	if !utf8.ValidString(s) {
		return nil, ErrInvalidUTF8
	}
	return append(utf16.Encode([]rune(s)), 0), nil
}

// UTF16PtrFromString is UTF16FromString returning the first element.
func UTF16PtrFromString(s string) (*uint16, error) {
	buf, err := UTF16FromString(s)
	if err != nil {
		return nil, err
	}
	return &buf[0], nil
}

// OptionalUTF16Ptr maps a nil string to a null pointer.
func OptionalUTF16Ptr(s *string) (*uint16, error) {
	if s == nil {
		return nil, nil
	}
	return UTF16PtrFromString(*s)
}

// UTF16ToString decodes buf up to the first NUL.
func UTF16ToString(buf []uint16) string {
	for i, c := range buf {
		if c == 0 {
			buf = buf[:i]
			break
		}
	}
	return string(utf16.Decode(buf))
}

// UTF16PtrToString decodes the NUL-terminated string at p.
func UTF16PtrToString(p *uint16) string {
	if p == nil {
		return ""
	}
	n := 0
	for ptr := unsafe.Pointer(p); *(*uint16)(ptr) != 0; n++ {
		ptr = unsafe.Add(ptr, 2)
	}
	return string(utf16.Decode(unsafe.Slice(p, n)))
}

// UTF16At decodes the string at a native address, as received by callbacks.
func UTF16At(addr uintptr) string {
	return UTF16PtrToString(PtrAt[uint16](addr))
}

// ANSIFromString encodes s as NUL-terminated Windows-1252.
func ANSIFromString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, ErrNulInString
	}
	if !utf8.ValidString(s) {
		return nil, ErrInvalidUTF8
	}
	b, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	return append(b, 0), nil
}

func ANSIPtrFromString(s string) (*byte, error) {
	buf, err := ANSIFromString(s)
	if err != nil {
		return nil, err
	}
	return &buf[0], nil
}

// OptionalANSIPtr maps a nil string to a null pointer.
func OptionalANSIPtr(s *string) (*byte, error) {
	if s == nil {
		return nil, nil
	}
	return ANSIPtrFromString(*s)
}

// ANSIToString decodes Windows-1252 text in buf up to the first NUL.
func ANSIToString(buf []byte) string {
	for i, c := range buf {
		if c == 0 {
			buf = buf[:i]
			break
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(buf)
	if err != nil {
		return string(buf)
	}
	return string(out)
}

// ANSIPtrToString decodes the NUL-terminated Windows-1252 string at p.
func ANSIPtrToString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for ptr := unsafe.Pointer(p); *(*byte)(ptr) != 0; n++ {
		ptr = unsafe.Add(ptr, 1)
	}
	return ANSIToString(unsafe.Slice(p, n))
}

func ANSIAt(addr uintptr) string {
	return ANSIPtrToString(PtrAt[byte](addr))
}

func trimMessage(s string) string {
	return strings.TrimRight(s, "\r\n ")
}
