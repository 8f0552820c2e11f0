package layout

import (
	"fmt"
	"strings"

	"winapigen/internal/diag"
)

// LayoutErrorKind enumerates types of layout calculation errors.
type LayoutErrorKind uint8

const (
	// LayoutErrRecursiveUnsized indicates a by-value type that contains itself.
	LayoutErrRecursiveUnsized LayoutErrorKind = iota + 1
	LayoutErrUnsized
	LayoutErrNotAType
	LayoutErrUnknown
	LayoutErrDocumentedSize
	LayoutErrLengthConversion
	LayoutErrTooLarge
)

// LayoutError represents an error during memory layout calculation.
type LayoutError struct {
	Kind    LayoutErrorKind
	Type    string
	Profile string
	Cycle   []string // for LayoutErrRecursiveUnsized
	Want    int      // for LayoutErrDocumentedSize
	Got     int
	Err     error // for LayoutErrLengthConversion
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrRecursiveUnsized:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type has infinite size (%s)", e.Type)
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(e.Cycle, " -> "))
	case LayoutErrUnsized:
		return fmt.Sprintf("%s has no native size", e.Type)
	case LayoutErrNotAType:
		return fmt.Sprintf("%s is not a type", e.Type)
	case LayoutErrUnknown:
		return fmt.Sprintf("unknown type %s", e.Type)
	case LayoutErrDocumentedSize:
		return fmt.Sprintf("%s is %d bytes on %s, documented size is %d", e.Type, e.Got, e.Profile, e.Want)
	case LayoutErrLengthConversion:
		return fmt.Sprintf("array length conversion error (%s): %v", e.Type, e.Err)
	case LayoutErrTooLarge:
		return fmt.Sprintf("%s exceeds %d bytes on %s", e.Type, MaxTypeSize, e.Profile)
	default:
		return fmt.Sprintf("layout error kind=%d %s", e.Kind, e.Type)
	}
}

func (e *LayoutError) Code() diag.Code {
	switch e.Kind {
	case LayoutErrRecursiveUnsized:
		return diag.LayRecursive
	case LayoutErrDocumentedSize:
		return diag.LayDocumentedSize
	case LayoutErrTooLarge:
		return diag.LayTooLarge
	}
	return diag.LayUnsized
}

// Diagnostic converts e for reporting.
func (e *LayoutError) Diagnostic() diag.Diagnostic {
	return diag.NewError(e.Code(), e.Type, e.Error())
}
