package diag

// Reporter is the minimal sink phases report into.
type Reporter interface {
	Report(code Code, sev Severity, subject, msg string, notes []Note)
}

// ReportBuilder accumulates diagnostic details before emitting to Reporter.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

func NewReportBuilder(r Reporter, sev Severity, code Code, subject, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag:     New(sev, code, subject, msg),
	}
}

// ReportError is a shortcut for SevError diagnostics.
func ReportError(r Reporter, code Code, subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevError, code, subject, msg)
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, subject, msg)
}

func (b *ReportBuilder) WithNote(subject, msg string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Notes = append(b.diag.Notes, Note{Subject: subject, Msg: msg})
	return b
}

// Emit sends the diagnostic to the reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		b.reporter.Report(b.diag.Code, b.diag.Severity, b.diag.Subject, b.diag.Message, b.diag.Notes)
	}
	b.emitted = true
}

// BagReporter writes into a Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, subject, msg string, notes []Note) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{
		Severity: sev, Code: code, Message: msg,
		Subject: subject, Notes: notes,
	})
}
