package emit

// errorsIdents are the package-level names the error helpers claim.
var errorsIdents = []string{"LastErrorCode", "FormatError", "errorsKernel32", "errorsFormatMessageW", "errorsLocalFree"}

// emitErrors writes LastErrorCode and FormatError. FormatError loads its own
// procs so it works whatever subset of the catalog was requested.
func (e *Emitter) emitErrors() {
	f := newFile()
	rt := e.rt(f)
	f.use("strings")
	f.use("unsafe")
	f.p(`
var (
	errorsKernel32       = %[1]s.NewDLL("kernel32.dll")
	errorsFormatMessageW = errorsKernel32.NewProc("FormatMessageW")
	errorsLocalFree      = errorsKernel32.NewProc("LocalFree")
)

// LastErrorCode returns the Win32 error code or HRESULT carried by err, or 0
// when err did not come from a native call.
func LastErrorCode(err error) uint32 { return %[1]s.ErrorCode(err) }

// FormatError returns the system message text for code, or "" when the
// system has none.
func FormatError(code uint32) string {
	const flags = 0x00000100 | 0x00000200 | 0x00001000 // allocate buffer, ignore inserts, from system
	var p *uint16
	r1, _, _ := errorsFormatMessageW.Call(flags, 0, uintptr(code), 0, uintptr(unsafe.Pointer(&p)), 0, 0)
	if r1 == 0 {
		return ""
	}
	s, _ := %[1]s.TakeUTF16(p, func(v uintptr) error {
		errorsLocalFree.Call(v)
		return nil
	})
	return strings.TrimRight(s, "\r\n ")
}
`, rt)
	e.render(e.fileName("errors", ""), "", f)
}
