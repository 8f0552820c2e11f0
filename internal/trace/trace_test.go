package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelAdmitsCoarserScopes(t *testing.T) {
	if !LevelStage.ShouldEmit(ScopeRun) || !LevelStage.ShouldEmit(ScopeStage) {
		t.Fatalf("stage level must admit run and stage")
	}
	if LevelStage.ShouldEmit(ScopeProfile) {
		t.Fatalf("stage level admitted profile scope")
	}
	if !LevelDebug.ShouldEmit(ScopeEntry) {
		t.Fatalf("debug level must admit entries")
	}
	if LevelOff.ShouldEmit(ScopeRun) {
		t.Fatalf("off admitted an event")
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRingKeepsNewestInOrder(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		r.Emit(&Event{Kind: KindPoint, Scope: ScopeStage, Name: name})
	}
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d", len(snap))
	}
	for i, want := range []string{"c", "d", "e"} {
		if snap[i].Name != want {
			t.Fatalf("snap[%d] = %q, want %q", i, snap[i].Name, want)
		}
	}
	if snap[0].Seq >= snap[2].Seq {
		t.Fatalf("sequence not increasing: %d, %d", snap[0].Seq, snap[2].Seq)
	}
}

func TestStreamNDJSONAndNesting(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelProfile, FormatNDJSON)
	ctx := WithTracer(context.Background(), tr)

	ctx, stage := Start(ctx, ScopeStage, "layout")
	_, prof := Start(ctx, ScopeProfile, "profile:windows-386")
	prof.WithExtra("types", "12").End("")
	Point(ctx, ScopeEntry, "SECURITY_ATTRIBUTES", "") // filtered out
	stage.End("ok")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	var ev struct {
		Kind     string            `json:"kind"`
		Name     string            `json:"name"`
		ParentID uint64            `json:"parent_id"`
		Extra    map[string]string `json:"extra"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Kind != "end" || ev.Name != "profile:windows-386" || ev.Extra["types"] != "12" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.ParentID != stage.ID() {
		t.Fatalf("parent = %d, want %d", ev.ParentID, stage.ID())
	}
}

func TestNopSpansAreInert(t *testing.T) {
	ctx, span := Start(context.Background(), ScopeRun, "run")
	if span.ID() != 0 || CurrentSpan(ctx).SpanID != 0 {
		t.Fatalf("nop tracer produced a span")
	}
	if d := span.End(""); d != 0 {
		t.Fatalf("nop span duration %v", d)
	}
}

func TestTextFormatSortsExtra(t *testing.T) {
	out := string(FormatEvent(&Event{Kind: KindSpanEnd, Scope: ScopeStage, Name: "emit",
		Extra: map[string]string{"z": "1", "a": "2"}}, FormatText))
	if !strings.Contains(out, "[stage] < emit {a=2, z=1}") {
		t.Fatalf("got %q", out)
	}
}
