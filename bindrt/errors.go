package bindrt

import (
	"errors"
	"fmt"
)

// Errno is a Win32 error code as reported by GetLastError or returned by
// status-style functions.
type Errno uint32

const (
	ErrorSuccess            Errno = 0
	ErrorInvalidFunction    Errno = 1
	ErrorFileNotFound       Errno = 2
	ErrorAccessDenied       Errno = 5
	ErrorInvalidHandle      Errno = 6
	ErrorInvalidParameter   Errno = 87
	ErrorCallNotImplemented Errno = 120
	ErrorInsufficientBuffer Errno = 122
	ErrorProcNotFound       Errno = 127
	ErrorMoreData           Errno = 234
)

func (e Errno) Error() string {
	if msg := FormatMessage(uint32(e)); msg != "" {
		return msg
	}
	return fmt.Sprintf("winapi error %d", uint32(e))
}

// HRESULT is a COM-style status. Negative values are failures.
type HRESULT int32

func (h HRESULT) Failed() bool { return h < 0 }

func (h HRESULT) Code() uint32 { return uint32(h) }

func (h HRESULT) Error() string {
	if msg := FormatMessage(uint32(h)); msg != "" {
		return msg
	}
	return fmt.Sprintf("HRESULT 0x%08X", uint32(h))
}

var (
	// ErrUnspecified stands in for the cause of a failed call that left no
	// error code behind.
	ErrUnspecified  = errors.New("call failed without an error code")
	ErrNoFreeSlot   = errors.New("no free callback slot")
	ErrSizeChanged  = errors.New("required buffer size changed between calls")
	ErrNilScope     = errors.New("owned result needs a non-nil scope")
	ErrNotSupported = errors.New("native calls are not supported on this platform")
)

// CallError reports a failed native call.
type CallError struct {
	Func string
	Err  error
}

func (e *CallError) Error() string {
	return e.Func + ": " + e.Err.Error()
}

func (e *CallError) Unwrap() error { return e.Err }

// LastError builds the error of a call whose failure is explained by the
// thread's last-error value e.
func LastError(fn string, e Errno) error {
	if e == ErrorSuccess {
		return &CallError{Func: fn, Err: ErrUnspecified}
	}
	return &CallError{Func: fn, Err: e}
}

// Failed builds the error of a call whose failure carries no code.
func Failed(fn string) error {
	return &CallError{Func: fn, Err: ErrUnspecified}
}

// StatusError builds the error of a call that returned Win32 error code r.
func StatusError(fn string, r uintptr) error {
	return &CallError{Func: fn, Err: Errno(uint32(r))}
}

// HResultError builds the error of a call that returned failing HRESULT r.
func HResultError(fn string, r uintptr) error {
	return &CallError{Func: fn, Err: HRESULT(int32(uint32(r)))}
}

// ErrorCode extracts the Win32 error code or HRESULT behind err, or 0.
func ErrorCode(err error) uint32 {
	var errno Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	var hr HRESULT
	if errors.As(err, &hr) {
		return uint32(hr)
	}
	return 0
}
