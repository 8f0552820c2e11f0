package diag

// Note adds context to a diagnostic, usually pointing at a related entry.
type Note struct {
	Subject string
	Msg     string
}

// Diagnostic is a single finding. Subject names the catalog entry, symbol or
// path the finding is about.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Subject  string
	Notes    []Note
}

func New(sev Severity, code Code, subject, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Subject:  subject,
		Message:  msg,
	}
}

func NewError(code Code, subject, msg string) Diagnostic {
	return New(SevError, code, subject, msg)
}

func (d Diagnostic) WithNote(subject, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Subject: subject, Msg: msg})
	return d
}

// String renders the diagnostic on one line without notes.
func (d Diagnostic) String() string {
	if d.Subject == "" {
		return d.Severity.String() + " " + d.Code.ID() + ": " + d.Message
	}
	return d.Severity.String() + " " + d.Code.ID() + " " + d.Subject + ": " + d.Message
}
