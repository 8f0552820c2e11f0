package diagfmt

import (
	"encoding/json"
	"io"

	"winapigen/internal/diag"
)

type NoteJSON struct {
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

type DiagnosticJSON struct {
	Severity string     `json:"severity"`
	Code     string     `json:"code"`
	Title    string     `json:"title"`
	Subject  string     `json:"subject,omitempty"`
	Message  string     `json:"message"`
	Notes    []NoteJSON `json:"notes,omitempty"`
}

// DiagnosticsOutput is the root of JSON output.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
}

// BuildDiagnosticsOutput converts items without serializing them. Count is
// the number of items before trimming.
func BuildDiagnosticsOutput(items []diag.Diagnostic, opts JSONOpts) DiagnosticsOutput {
	shown := items
	if opts.Max > 0 && len(shown) > opts.Max {
		shown = shown[:opts.Max]
	}
	out := DiagnosticsOutput{Diagnostics: make([]DiagnosticJSON, 0, len(shown)), Count: len(items)}
	for _, d := range shown {
		dj := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Title:    d.Code.Title(),
			Subject:  d.Subject,
			Message:  d.Message,
		}
		if opts.IncludeNotes {
			for _, n := range d.Notes {
				dj.Notes = append(dj.Notes, NoteJSON{Subject: n.Subject, Message: n.Msg})
			}
		}
		out.Diagnostics = append(out.Diagnostics, dj)
	}
	return out
}

// JSON writes items as one indented JSON document.
func JSON(w io.Writer, items []diag.Diagnostic, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildDiagnosticsOutput(items, opts))
}
