package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Match with errors.Is.
var (
	ErrConfiguration          = errors.New("configuration error")
	ErrUnknownSymbol          = errors.New("unknown symbol")
	ErrUnsupportedMarshalling = errors.New("unsupported marshalling")
	ErrEmission               = errors.New("emission inconsistency")
	ErrEmissionIO             = errors.New("emission I/O error")
)

// Error is a fatal failure of one class carrying the diagnostics behind it.
type Error struct {
	Class       error
	Path        string
	Diagnostics []Diagnostic
	Err         error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Class.Error())
	if e.Path != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Path)
		sb.WriteString(")")
	}
	switch len(e.Diagnostics) {
	case 0:
	case 1:
		d := e.Diagnostics[0]
		sb.WriteString(": ")
		if d.Subject != "" {
			sb.WriteString(d.Subject)
			sb.WriteString(": ")
		}
		sb.WriteString(d.Message)
	default:
		fmt.Fprintf(&sb, ": %d problems, first: ", len(e.Diagnostics))
		d := e.Diagnostics[0]
		if d.Subject != "" {
			sb.WriteString(d.Subject)
			sb.WriteString(": ")
		}
		sb.WriteString(d.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Is(target error) bool {
	return target == e.Class
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Subject returns the subject of the first diagnostic, e.g. the unknown name.
func (e *Error) Subject() string {
	if len(e.Diagnostics) == 0 {
		return ""
	}
	return e.Diagnostics[0].Subject
}

// Errorf builds a single-diagnostic Error.
func Errorf(class error, code Code, subject, format string, args ...any) *Error {
	return &Error{
		Class:       class,
		Diagnostics: []Diagnostic{NewError(code, subject, fmt.Sprintf(format, args...))},
	}
}

// IOError wraps an I/O failure with the offending path.
func IOError(code Code, path string, err error) *Error {
	return &Error{
		Class:       ErrEmissionIO,
		Path:        path,
		Diagnostics: []Diagnostic{NewError(code, path, code.Title())},
		Err:         err,
	}
}

// FromBag returns an Error of class when bag holds errors, nil otherwise.
func FromBag(class error, bag *Bag) error {
	if bag == nil || !bag.HasErrors() {
		return nil
	}
	bag.Sort()
	items := make([]Diagnostic, 0, bag.Len())
	for _, d := range bag.Items() {
		if d.Severity >= SevError {
			items = append(items, d)
		}
	}
	return &Error{Class: class, Diagnostics: items}
}

// Diagnostics extracts the diagnostics carried by err, if any.
func Diagnostics(err error) []Diagnostic {
	var de *Error
	if errors.As(err, &de) {
		return de.Diagnostics
	}
	return nil
}
