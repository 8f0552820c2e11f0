package gen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/emit"
	"winapigen/internal/observ"
	"winapigen/internal/testkit"
)

func embedded(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	return cat
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names
}

func noTempDirs(t *testing.T, parent string) {
	t.Helper()
	for _, name := range listDir(t, parent) {
		if strings.HasPrefix(name, ".winapigen-") {
			t.Fatalf("temporary directory %s left behind", name)
		}
	}
}

func TestGenerateWritesFilesAndState(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "win")
	res, err := Generate(context.Background(), embedded(t), &Request{
		Symbols:   []string{"EnumWindows", "GetWindowInfo"},
		OutputDir: out,
		Package:   "win",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	names := listDir(t, out)
	for _, want := range []string{"zwinapi_types.go", "zwinapi_callbacks.go", "zwinapi_funcs.go",
		"zwinapi_errors.go", "zwinapi_structs_amd64.go", "zwinapi_structs_386.go", ".winapigen.state"} {
		if !slices.Contains(names, want) {
			t.Fatalf("missing %s in %v", want, names)
		}
	}
	if err := testkit.CheckOrder(res.Model); err != nil {
		t.Fatalf("model order: %v", err)
	}
	if len(res.Written) != len(res.Artifacts) || len(res.Unchanged) != 0 {
		t.Fatalf("written %d of %d artifacts, unchanged %d", len(res.Written), len(res.Artifacts), len(res.Unchanged))
	}
	for _, s := range Stages {
		if !res.Timings.Has(s) {
			t.Fatalf("no timing for %s", s)
		}
	}
	noTempDirs(t, root)

	st, err := readState(out, emit.SourceSetMain)
	if err != nil || st == nil {
		t.Fatalf("state: %v %v", st, err)
	}
	if !slices.Equal(st.Symbols, []string{"EnumWindows", "GetWindowInfo"}) || len(st.Files) != len(res.Artifacts) {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestRegenerateSkipsUnchangedAndRemovesStale(t *testing.T) {
	out := t.TempDir()
	cat := embedded(t)
	req := func(names ...string) *Request {
		return &Request{Symbols: names, OutputDir: out, Package: "win"}
	}
	if _, err := Generate(context.Background(), cat, req("EnumWindows", "GetCurrentProcessId")); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := Generate(context.Background(), cat, req("EnumWindows", "GetCurrentProcessId"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(res.Written) != 0 || len(res.Unchanged) != len(res.Artifacts) {
		t.Fatalf("identical rerun rewrote %v", res.Written)
	}

	res, err = Generate(context.Background(), cat, req("GetCurrentProcessId"))
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if !slices.Contains(res.Removed, "zwinapi_callbacks.go") {
		t.Fatalf("callbacks file not removed: %v", res.Removed)
	}
	if slices.Contains(listDir(t, out), "zwinapi_callbacks.go") {
		t.Fatalf("stale callbacks file still present")
	}
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, name := range listDir(t, dir) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		out[name] = string(data)
	}
	return out
}

func TestFailedRenameRestoresPreviousOutput(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "win")
	cat := embedded(t)
	if _, err := Generate(context.Background(), cat, &Request{
		Symbols: []string{"EnumWindows", "GetCurrentProcessId"}, OutputDir: out, Package: "win",
	}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := snapshotDir(t, out)

	statePath := filepath.Join(out, StateFile(emit.SourceSetMain))
	failed := false
	renameFile = func(oldpath, newpath string) error {
		if newpath == statePath && !failed {
			failed = true
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}
	t.Cleanup(func() { renameFile = os.Rename })

	_, err := Generate(context.Background(), cat, &Request{
		Symbols: []string{"GetWindowInfo", "GetCurrentProcessId"}, OutputDir: out, Package: "win",
	})
	if !errors.Is(err, diag.ErrEmissionIO) {
		t.Fatalf("expected emission I/O error, got %v", err)
	}
	after := snapshotDir(t, out)
	if len(after) != len(before) {
		t.Fatalf("files changed: before %v after %v", sortedKeys(before), sortedKeys(after))
	}
	for name, content := range before {
		if after[name] != content {
			t.Fatalf("%s was not restored", name)
		}
	}
	noTempDirs(t, root)
}

func TestFailedRenameOnFirstRunCreatesNothing(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "win")
	calls := 0
	renameFile = func(oldpath, newpath string) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}
	t.Cleanup(func() { renameFile = os.Rename })

	_, err := Generate(context.Background(), embedded(t), &Request{
		Symbols: []string{"Sleep"}, OutputDir: out, Package: "win",
	})
	if !errors.Is(err, diag.ErrEmissionIO) {
		t.Fatalf("expected emission I/O error, got %v", err)
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output directory left behind: %v", statErr)
	}
	noTempDirs(t, root)
}

func TestUnknownSymbolLeavesOutputUntouched(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "win")
	cat := embedded(t)
	if _, err := Generate(context.Background(), cat, &Request{Symbols: []string{"GetCurrentProcessId"}, OutputDir: out, Package: "win"}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	before := listDir(t, out)
	types, err := os.ReadFile(filepath.Join(out, "zwinapi_types.go"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	_, err = Generate(context.Background(), cat, &Request{Symbols: []string{"GetCurrentProcessId", "NoSuchApi"}, OutputDir: out, Package: "win"})
	if !errors.Is(err, diag.ErrUnknownSymbol) {
		t.Fatalf("expected unknown symbol error, got %v", err)
	}
	if !slices.Equal(before, listDir(t, out)) {
		t.Fatalf("output changed: %v -> %v", before, listDir(t, out))
	}
	after, _ := os.ReadFile(filepath.Join(out, "zwinapi_types.go"))
	if string(after) != string(types) {
		t.Fatalf("types file rewritten")
	}
	noTempDirs(t, root)
}

func TestFailedFirstRunCreatesNothing(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "win")
	_, err := Generate(context.Background(), embedded(t), &Request{Symbols: []string{"NoSuchApi"}, OutputDir: out, Package: "win"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output directory created on failure")
	}
}

func TestMainAndTestSetsAreIsolated(t *testing.T) {
	out := t.TempDir()
	cat := embedded(t)
	results, err := GenerateAll(context.Background(), cat, []*Request{
		{Symbols: []string{"EnumWindows"}, OutputDir: out, Package: "win", SourceSet: emit.SourceSetMain},
		{Symbols: []string{"GetCurrentProcessId"}, OutputDir: out, Package: "win", SourceSet: emit.SourceSetTest},
	})
	if err != nil {
		t.Fatalf("generate all: %v", err)
	}
	for _, a := range results[1].Artifacts {
		if !strings.HasSuffix(a.Path, "_test.go") {
			t.Fatalf("test artifact %s lacks _test suffix", a.Path)
		}
	}
	mainFuncs, err := os.ReadFile(filepath.Join(out, "zwinapi_funcs.go"))
	if err != nil {
		t.Fatalf("read main funcs: %v", err)
	}

	// Regenerating the test set must not touch main files.
	if _, err := Generate(context.Background(), cat, &Request{Symbols: []string{"Sleep"}, OutputDir: out, Package: "win", SourceSet: emit.SourceSetTest}); err != nil {
		t.Fatalf("test rerun: %v", err)
	}
	now, _ := os.ReadFile(filepath.Join(out, "zwinapi_funcs.go"))
	if string(now) != string(mainFuncs) {
		t.Fatalf("main funcs changed by test run")
	}
	names := listDir(t, out)
	if !slices.Contains(names, ".winapigen.state") || !slices.Contains(names, ".winapigen_test.state") {
		t.Fatalf("state files missing: %v", names)
	}
	if !strings.Contains(string(mainFuncs), "EnumWindows") {
		t.Fatalf("main funcs lost EnumWindows")
	}
}

func TestGenerateAllIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	results, err := GenerateAll(context.Background(), embedded(t), []*Request{
		{Symbols: []string{"NoSuchApi"}, OutputDir: filepath.Join(root, "a"), Package: "a"},
		{Symbols: []string{"Sleep"}, OutputDir: filepath.Join(root, "b"), Package: "b"},
	})
	if !errors.Is(err, diag.ErrUnknownSymbol) {
		t.Fatalf("expected unknown symbol, got %v", err)
	}
	if results[0] != nil || results[1] == nil {
		t.Fatalf("unexpected results %v", results)
	}
	if !strings.Contains(err.Error(), "a[main]") {
		t.Fatalf("error lacks unit label: %v", err)
	}
}

func TestGenerateAllNilRequest(t *testing.T) {
	results, err := GenerateAll(context.Background(), embedded(t), []*Request{
		{Symbols: []string{"Sleep"}, DryRun: true, Package: "a"},
		nil,
	})
	if err == nil || !strings.Contains(err.Error(), "request 1") {
		t.Fatalf("expected an error naming request 1, got %v", err)
	}
	if results[0] == nil || results[1] != nil {
		t.Fatalf("unexpected results %v", results)
	}
}

func TestGenerateAllRejectsSharedOutput(t *testing.T) {
	out := t.TempDir()
	_, err := GenerateAll(context.Background(), embedded(t), []*Request{
		{Symbols: []string{"Sleep"}, OutputDir: out, Package: "a"},
		{Symbols: []string{"Sleep"}, OutputDir: out + string(filepath.Separator), Package: "b"},
	})
	if !errors.Is(err, diag.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestUnknownProfileAndSourceSet(t *testing.T) {
	cat := embedded(t)
	_, err := Generate(context.Background(), cat, &Request{Symbols: []string{"Sleep"}, DryRun: true, Package: "win", Profiles: []string{"windows-mips"}})
	if !errors.Is(err, diag.ErrConfiguration) {
		t.Fatalf("expected configuration error for profile, got %v", err)
	}
	_, err = Generate(context.Background(), cat, &Request{Symbols: []string{"Sleep"}, DryRun: true, Package: "win", SourceSet: "bench"})
	if !errors.Is(err, diag.ErrConfiguration) {
		t.Fatalf("expected configuration error for source set, got %v", err)
	}
}

func TestProfileSelection(t *testing.T) {
	res, err := Generate(context.Background(), embedded(t), &Request{
		Symbols:  []string{"GetWindowInfo"},
		DryRun:   true,
		Package:  "win",
		Profiles: []string{"windows-386", "windows-amd64"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var structs []string
	for _, a := range res.Artifacts {
		if strings.HasPrefix(a.Path, "zwinapi_structs_") {
			structs = append(structs, a.Path)
		}
	}
	if !slices.Equal(structs, []string{"zwinapi_structs_386.go", "zwinapi_structs_amd64.go"}) {
		t.Fatalf("unexpected struct files %v", structs)
	}
}

func TestProgressAndTimer(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	timer := observ.NewTimer()
	_, err := Generate(context.Background(), embedded(t), &Request{
		Symbols: []string{"Sleep"},
		DryRun:  true,
		Package: "win",
		Timer:   timer,
		Progress: FuncSink(func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		}),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(events) != 3*len(Stages) {
		t.Fatalf("got %d events, want %d", len(events), 3*len(Stages))
	}
	last := events[len(events)-1]
	if last.Stage != StageWrite || last.Status != StatusDone || last.Unit != "win[main]" {
		t.Fatalf("unexpected last event %+v", last)
	}
	if got := len(timer.Report().Phases); got != len(Stages) {
		t.Fatalf("timer recorded %d phases", got)
	}
}

func TestCancelledContextStopsBeforeWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "win")
	_, err := Generate(ctx, embedded(t), &Request{Symbols: []string{"Sleep"}, OutputDir: out, Package: "win"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output created after cancellation")
	}
}
