//go:build !windows

package bindrt

import (
	"sync/atomic"
)

type dllImpl struct{}

func newDLLImpl(string) dllImpl { return dllImpl{} }

func (dllImpl) find(string) (procImpl, error) {
	return procImpl{}, ErrNotSupported
}

type procImpl struct{}

func (procImpl) call(...uintptr) (uintptr, uintptr, Errno) {
	return 0, 0, ErrorCallNotImplemented
}

var fakeEntry atomic.Uintptr

// newCallback hands out distinct placeholder addresses; nothing native can
// call them.
func newCallback(any, CallConv) uintptr {
	return 0x10000 + fakeEntry.Add(16)
}

func FormatMessage(uint32) string { return "" }
