// Package diagfmt renders diagnostics for terminals and machines.
package diagfmt

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"winapigen/internal/diag"
)

// Pretty writes one line per diagnostic:
//
//	error[RES2001] NoSuchApi: unknown symbol "NoSuchApi"
//	  note: EnumWindows: requested here
//
// followed by a count of omitted items when Max trims the list.
func Pretty(w io.Writer, items []diag.Diagnostic, opts PrettyOpts) error {
	sevColor := func(sev diag.Severity) *color.Color {
		c := color.New(color.Bold)
		switch sev {
		case diag.SevError:
			c = color.New(color.FgRed, color.Bold)
		case diag.SevWarning:
			c = color.New(color.FgYellow, color.Bold)
		case diag.SevInfo:
			c = color.New(color.FgCyan, color.Bold)
		}
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	subject := color.New(color.Bold)
	noteLabel := color.New(color.FgBlue)
	if opts.Color {
		subject.EnableColor()
		noteLabel.EnableColor()
	} else {
		subject.DisableColor()
		noteLabel.DisableColor()
	}

	shown := items
	if opts.Max > 0 && len(shown) > opts.Max {
		shown = shown[:opts.Max]
	}
	for _, d := range shown {
		head := sevColor(d.Severity).Sprintf("%s[%s]", severityWord(d.Severity), d.Code.ID())
		var err error
		if d.Subject != "" {
			_, err = fmt.Fprintf(w, "%s %s: %s\n", head, subject.Sprint(d.Subject), d.Message)
		} else {
			_, err = fmt.Fprintf(w, "%s %s\n", head, d.Message)
		}
		if err != nil {
			return err
		}
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			if n.Subject != "" {
				_, err = fmt.Fprintf(w, "  %s %s: %s\n", noteLabel.Sprint("note:"), n.Subject, n.Msg)
			} else {
				_, err = fmt.Fprintf(w, "  %s %s\n", noteLabel.Sprint("note:"), n.Msg)
			}
			if err != nil {
				return err
			}
		}
	}
	if rest := len(items) - len(shown); rest > 0 {
		if _, err := fmt.Fprintf(w, "... and %d more\n", rest); err != nil {
			return err
		}
	}
	return nil
}

// Error prints err: its diagnostics when it carries any, else its text. The
// class and path of a diag.Error come first.
func Error(w io.Writer, err error, opts PrettyOpts) error {
	if err == nil {
		return nil
	}
	items := diag.Diagnostics(err)
	if len(items) == 0 {
		_, werr := fmt.Fprintf(w, "%s %s\n", errorWord(opts.Color), err)
		return werr
	}
	var de *diag.Error
	if errors.As(err, &de) {
		line := de.Class.Error()
		if de.Path != "" {
			line += " (" + de.Path + ")"
		}
		if de.Err != nil {
			line += ": " + de.Err.Error()
		}
		if _, werr := fmt.Fprintf(w, "%s %s\n", errorWord(opts.Color), line); werr != nil {
			return werr
		}
	}
	return Pretty(w, items, opts)
}

func errorWord(colored bool) string {
	c := color.New(color.FgRed, color.Bold)
	if colored {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint("error:")
}

func severityWord(sev diag.Severity) string {
	switch sev {
	case diag.SevError:
		return "error"
	case diag.SevWarning:
		return "warning"
	default:
		return "info"
	}
}
