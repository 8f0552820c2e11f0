package diagfmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"winapigen/internal/diag"
)

func sample() []diag.Diagnostic {
	return []diag.Diagnostic{
		diag.NewError(diag.ResUnknownSymbol, "NoSuchApi", `unknown symbol "NoSuchApi"`).
			WithNote("", "symbols must be catalog entries"),
		diag.New(diag.SevWarning, diag.LayDocumentedSize, "WINDOWINFO", "size differs"),
		diag.NewError(diag.IOWrite, "", "disk full"),
	}
}

func TestPrettyPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, sample(), PrettyOpts{ShowNotes: true}); err != nil {
		t.Fatalf("pretty: %v", err)
	}
	want := "error[RES2001] NoSuchApi: unknown symbol \"NoSuchApi\"\n" +
		"  note: symbols must be catalog entries\n" +
		"warning[LAY3004] WINDOWINFO: size differs\n" +
		"error[IO6001] disk full\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrettyMaxAndColor(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, sample(), PrettyOpts{Max: 1, Color: true}); err != nil {
		t.Fatalf("pretty: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected colour escapes: %q", out)
	}
	if !strings.HasSuffix(out, "... and 2 more\n") || strings.Contains(out, "note:") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestErrorPrintsClassThenDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	err := diag.Errorf(diag.ErrUnknownSymbol, diag.ResUnknownSymbol, "Nope", "unknown symbol %q", "Nope")
	if werr := Error(&buf, err, PrettyOpts{}); werr != nil {
		t.Fatalf("error: %v", werr)
	}
	if !strings.HasPrefix(buf.String(), "error: unknown symbol\nerror[RES2001] Nope:") {
		t.Fatalf("got %q", buf.String())
	}

	buf.Reset()
	if werr := Error(&buf, errors.New("plain failure"), PrettyOpts{}); werr != nil {
		t.Fatalf("error: %v", werr)
	}
	if buf.String() != "error: plain failure\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sample(), JSONOpts{Max: 2, IncludeNotes: true}); err != nil {
		t.Fatalf("json: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 3 || len(out.Diagnostics) != 2 {
		t.Fatalf("count %d, items %d", out.Count, len(out.Diagnostics))
	}
	first := out.Diagnostics[0]
	if first.Code != "RES2001" || first.Severity != "ERROR" || first.Title != "Unknown symbol" || len(first.Notes) != 1 {
		t.Fatalf("unexpected first item %+v", first)
	}
}

func TestSarif(t *testing.T) {
	var buf bytes.Buffer
	if err := Sarif(&buf, sample(), SarifRunMeta{ToolName: "winapigen", ToolVersion: "0.1.0"}); err != nil {
		t.Fatalf("sarif: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	run := log.Runs[0]
	if len(run.Results) != 3 || len(run.Tool.Driver.Rules) != 3 {
		t.Fatalf("results %d rules %d", len(run.Results), len(run.Tool.Driver.Rules))
	}
	if run.Tool.Driver.Rules[0].ID != "IO6001" {
		t.Fatalf("rules not sorted: %+v", run.Tool.Driver.Rules)
	}
	if run.Invocations[0].ExecutionSuccessful {
		t.Fatalf("errors present but run marked successful")
	}
	if got := run.Results[1].Locations[0].LogicalLocations[0].Name; got != "WINDOWINFO" {
		t.Fatalf("location %q", got)
	}
	if run.Results[2].Locations != nil {
		t.Fatalf("subjectless result has a location")
	}
}
