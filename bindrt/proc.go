package bindrt

import "sync"

// CallConv is the native calling convention of a callback entry point.
type CallConv uint8

const (
	Stdcall CallConv = iota
	Cdecl
)

// CallFunc performs a native call. Tests install one with NewFakeProc.
type CallFunc func(args ...uintptr) (r1, r2 uintptr, err Errno)

// DLL is a system library loaded on first use.
type DLL struct {
	Name string

	once sync.Once
	impl dllImpl
}

func NewDLL(name string) *DLL {
	return &DLL{Name: name}
}

func (d *DLL) load() dllImpl {
	d.once.Do(func() { d.impl = newDLLImpl(d.Name) })
	return d.impl
}

// NewProc returns the exported procedure name of d. Nothing is loaded until
// the first call.
func (d *DLL) NewProc(name string) *Proc {
	return &Proc{Name: name, dll: d}
}

// Proc is an exported procedure of a DLL.
type Proc struct {
	Name string

	dll  *DLL
	fake CallFunc

	once sync.Once
	impl procImpl
	err  error
}

// NewFakeProc returns a procedure whose calls go to fn.
func NewFakeProc(name string, fn CallFunc) *Proc {
	return &Proc{Name: name, fake: fn}
}

// Find loads the library and resolves the procedure.
func (p *Proc) Find() error {
	if p.fake != nil {
		return nil
	}
	p.once.Do(func() {
		p.impl, p.err = p.dll.load().find(p.Name)
	})
	return p.err
}

// Call invokes the procedure with the given argument slots. err is the
// thread's last-error value after the call; it is only meaningful when the
// return value signals failure. A procedure that cannot be found returns
// ErrorProcNotFound.
//
//go:uintptrescapes
func (p *Proc) Call(args ...uintptr) (r1, r2 uintptr, err Errno) {
	if p.fake != nil {
		return p.fake(args...)
	}
	if p.Find() != nil {
		return 0, 0, ErrorProcNotFound
	}
	return p.impl.call(args...)
}
