//go:build windows

package bindrt

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

type dllImpl struct {
	lazy *windows.LazyDLL
}

func newDLLImpl(name string) dllImpl {
	return dllImpl{lazy: windows.NewLazySystemDLL(name)}
}

func (d dllImpl) find(name string) (procImpl, error) {
	proc := d.lazy.NewProc(name)
	if err := proc.Find(); err != nil {
		return procImpl{}, err
	}
	return procImpl{lazy: proc}, nil
}

type procImpl struct {
	lazy *windows.LazyProc
}

//go:uintptrescapes
func (p procImpl) call(args ...uintptr) (uintptr, uintptr, Errno) {
	r1, r2, err := p.lazy.Call(args...)
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return r1, r2, Errno(errno)
	}
	return r1, r2, ErrorSuccess
}

func newCallback(fn any, conv CallConv) uintptr {
	if conv == Cdecl {
		return windows.NewCallbackCDecl(fn)
	}
	return windows.NewCallback(fn)
}

// FormatMessage returns the system message for code, or "" when there is
// none.
func FormatMessage(code uint32) string {
	var buf [512]uint16
	flags := uint32(windows.FORMAT_MESSAGE_FROM_SYSTEM | windows.FORMAT_MESSAGE_IGNORE_INSERTS)
	n, err := windows.FormatMessage(flags, 0, code, 0, buf[:], nil)
	if err != nil || n == 0 {
		return ""
	}
	return trimMessage(UTF16ToString(buf[:n]))
}
