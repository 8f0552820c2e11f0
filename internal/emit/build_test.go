package emit

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// goCommand returns the go tool, skipping tests that build generated
// packages when it is missing or -short is set.
func goCommand(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds generated packages")
	}
	path, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go command not available")
	}
	return path
}

// writePackage writes files into a fresh directory under testdata. It lives
// inside the module so the runtime import resolves.
func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	dir, err := os.MkdirTemp("testdata", "pkg")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func runGo(t *testing.T, goCmd, dir string, env []string, args ...string) {
	t.Helper()
	cmd := exec.Command(goCmd, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go %s (%s): %v\n%s", strings.Join(args, " "), strings.Join(env, " "), err, out)
	}
}

func TestWholeCatalogVetsForEveryArch(t *testing.T) {
	goCmd := goCommand(t)
	cat := embedded(t)
	dir := writePackage(t, generate(t, cat.Names()...))
	for _, p := range cat.Profiles() {
		goarch := p.GOARCH
		t.Run(goarch, func(t *testing.T) {
			runGo(t, goCmd, dir, []string{"GOOS=windows", "GOARCH=" + goarch, "CGO_ENABLED=0"}, "vet", ".")
		})
	}
}

func TestAnyOSDropsBuildConstraint(t *testing.T) {
	cat := embedded(t)
	files, err := emitFrom(t, cat, cat.Profiles(), Options{Package: "win", AnyOS: true}, "EnumWindows", "OpenProcess")
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	for path, src := range files {
		if strings.Contains(src, "//go:build") {
			t.Fatalf("%s keeps a build constraint:\n%s", path, src)
		}
	}
}

func TestWrappersRunAgainstFakeProcs(t *testing.T) {
	goCmd := goCommand(t)
	switch runtime.GOARCH {
	case "amd64", "386", "arm64":
	default:
		t.Skipf("no ABI profile for %s", runtime.GOARCH)
	}
	cat := embedded(t)
	files, err := emitFrom(t, cat, cat.Profiles(), Options{Package: "win", AnyOS: true}, "EnumWindows", "OpenProcess")
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	harness, err := os.ReadFile(filepath.Join("testdata", "wrappers_test.go.in"))
	if err != nil {
		t.Fatalf("read harness: %v", err)
	}
	files["wrappers_test.go"] = string(harness)
	dir := writePackage(t, files)
	runGo(t, goCmd, dir, []string{"CGO_ENABLED=0"}, "test", "-count=1", ".")
}
