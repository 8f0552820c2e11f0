package diagfmt

// PrettyOpts configures human-readable output.
type PrettyOpts struct {
	Color     bool
	ShowNotes bool
	Max       int // 0 means no limit
}

// JSONOpts configures JSON output.
type JSONOpts struct {
	IncludeNotes bool
	Max          int // trims the output, not the bag
}

// SarifRunMeta describes the tool run in SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
}
