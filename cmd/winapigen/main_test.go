package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"winapigen/internal/diag"
	"winapigen/internal/emit"
	"winapigen/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WINAPIGEN_CATALOG", "")
	t.Setenv("WINAPIGEN_TRACE", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--no-cache", "--color", "off"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenerateCommandWritesBindings(t *testing.T) {
	out := filepath.Join(t.TempDir(), "win")
	if _, err := execute(t, "generate", "--out", out, "--quiet", "EnumWindows", "GetWindowInfo"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "zwinapi_funcs.go"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "package win\n") || !strings.Contains(string(data), "func EnumWindows(") {
		t.Fatalf("unexpected funcs file:\n%s", data)
	}
}

func TestGenerateCommandUnknownSymbol(t *testing.T) {
	out := filepath.Join(t.TempDir(), "win")
	_, err := execute(t, "generate", "--out", out, "--quiet", "NoSuchApi")
	if !errors.Is(err, diag.ErrUnknownSymbol) {
		t.Fatalf("expected unknown symbol, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Fatalf("exit code %d", exitCode(err))
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output directory created")
	}
}

func TestCatalogLayoutCommand(t *testing.T) {
	got, err := execute(t, "catalog", "layout", "--abi", "windows-386", "SECURITY_ATTRIBUTES")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if !strings.Contains(got, "SECURITY_ATTRIBUTES on windows-386: size 12, align 4") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestReadNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	content := "# user32\nEnumWindows, GetWindowTextW\n\n  GetWindowInfo # trailing comment\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	names, err := readNamesFile(nil, path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !slices.Equal(names, []string{"EnumWindows", "GetWindowTextW", "GetWindowInfo"}) {
		t.Fatalf("got %v", names)
	}
	names, err = readNamesFile(strings.NewReader("Sleep\n"), "-")
	if err != nil || !slices.Equal(names, []string{"Sleep"}) {
		t.Fatalf("stdin: %v %v", names, err)
	}
}

func TestDefaultPackage(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"internal/win32", "win32"},
		{"out/Win-API", "winapi"},
		{"gen/7zip", "win"},
	} {
		if got := defaultPackage(tc.in); got != tc.want {
			t.Fatalf("defaultPackage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestManifestRequests(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "cmd", "tool")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `package = "win"
out = "internal/win"
abi = ["windows-amd64"]

[main]
functions = ["EnumWindows"]

[test]
functions = ["Sleep"]
out = "internal/win/wintest"
package = "wintest"
`
	if err := os.WriteFile(filepath.Join(root, manifestName), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := loadProjectManifest(sub)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reqs := m.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if reqs[0].SourceSet != emit.SourceSetMain || reqs[0].OutputDir != filepath.Join(root, "internal", "win") || reqs[0].Package != "win" {
		t.Fatalf("unexpected main request %+v", reqs[0])
	}
	if reqs[1].SourceSet != emit.SourceSetTest || reqs[1].Package != "wintest" || !slices.Equal(reqs[1].Profiles, []string{"windows-amd64"}) {
		t.Fatalf("unexpected test request %+v", reqs[1])
	}
}

func TestManifestRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, manifestName), []byte("out = \"x\"\nfuncs = [\"A\"]\n[main]\nfunctions = [\"Sleep\"]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := loadProjectManifest(dir)
	if !errors.Is(err, diag.ErrConfiguration) || !strings.Contains(err.Error(), "funcs") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestWriteVersion(t *testing.T) {
	var buf bytes.Buffer
	info := version.Info{Version: "1.0.0", CatalogVersion: "2024.1", GitCommit: "abc"}
	if err := writeVersion(&buf, "json", false, info); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(buf.String(), `"catalog_version": "2024.1"`) {
		t.Fatalf("got %s", buf.String())
	}
	if err := writeVersion(&buf, "yaml", false, info); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.New("x"), 1},
		{diag.Errorf(diag.ErrUnknownSymbol, diag.ResUnknownSymbol, "", "x"), 2},
		{diag.Errorf(diag.ErrUnsupportedMarshalling, diag.MarInfo, "", "x"), 3},
		{diag.Errorf(diag.ErrConfiguration, diag.IOManifest, "", "x"), 4},
		{diag.Errorf(diag.ErrEmission, diag.EmtInconsistent, "", "x"), 5},
		{diag.IOError(diag.IOWrite, "p", errors.New("x")), 6},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMemProfileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.pprof")
	t.Cleanup(func() { _ = rootCmd.PersistentFlags().Set("mem-profile", "") })
	if _, err := execute(t, "--mem-profile", path, "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("heap profile not written: %v", err)
	}
}
