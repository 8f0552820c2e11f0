package layout

import (
	"errors"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
)

// Verify lays out every struct and union of cat on every profile and reports
// each failure, including differences from documented sizes. It returns the
// number of problems found.
func Verify(cat *catalog.Catalog, r diag.Reporter) int {
	problems := 0
	for _, p := range cat.Profiles() {
		engine := New(TargetFor(p), cat)
		for _, name := range cat.Names() {
			entry, _ := cat.Lookup(name)
			if entry.Kind != catalog.KindStruct && entry.Kind != catalog.KindUnion {
				continue
			}
			if _, err := engine.LayoutNamed(name); err != nil {
				problems++
				var le *LayoutError
				if errors.As(err, &le) {
					d := le.Diagnostic()
					r.Report(d.Code, d.Severity, d.Subject, d.Message, nil)
					continue
				}
				r.Report(diag.LayUnsized, diag.SevError, name, err.Error(), nil)
			}
		}
	}
	return problems
}
