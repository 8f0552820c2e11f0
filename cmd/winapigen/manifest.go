package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"winapigen/internal/diag"
	"winapigen/internal/emit"
	"winapigen/internal/gen"
)

const manifestName = "winapigen.toml"

// projectManifest is a parsed winapigen.toml:
//
//	package = "win"
//	out = "internal/win"
//	abi = ["windows-amd64", "windows-386"]
//
//	[main]
//	functions = ["EnumWindows", "GetWindowTextW"]
//
//	[test]
//	functions = ["GetCurrentProcessId"]
//	out = "internal/win/wintest"
//	package = "wintest"
type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Package       string    `toml:"package"`
	Out           string    `toml:"out"`
	ABI           []string  `toml:"abi"`
	CallbackSlots int       `toml:"callback_slots"`
	RuntimeImport string    `toml:"runtime_import"`
	Main          setConfig `toml:"main"`
	Test          setConfig `toml:"test"`
}

type setConfig struct {
	Functions []string `toml:"functions"`
	Out       string   `toml:"out"`
	Package   string   `toml:"package"`
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadProjectManifest(startDir string) (*projectManifest, error) {
	path, ok, err := findManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, diag.Errorf(diag.ErrConfiguration, diag.IOManifest, startDir,
			"no %s found in %s or any parent directory", manifestName, startDir)
	}
	cfg, err := loadProjectConfig(path)
	if err != nil {
		return nil, err
	}
	return &projectManifest{Path: path, Root: filepath.Dir(path), Config: cfg}, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, diag.Errorf(diag.ErrConfiguration, diag.IOManifest, path, "failed to parse TOML: %v", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return projectConfig{}, diag.Errorf(diag.ErrConfiguration, diag.IOManifest, path, "unknown keys: %s", strings.Join(keys, ", "))
	}
	if strings.TrimSpace(cfg.Out) == "" {
		return projectConfig{}, diag.Errorf(diag.ErrConfiguration, diag.IOManifest, path, "missing out")
	}
	if len(cfg.Main.Functions) == 0 && len(cfg.Test.Functions) == 0 {
		return projectConfig{}, diag.Errorf(diag.ErrConfiguration, diag.IOManifest, path, "no functions in [main] or [test]")
	}
	return cfg, nil
}

// requests turns the manifest into one request per non-empty source set.
// Relative paths are resolved against the manifest directory.
func (m *projectManifest) requests() []*gen.Request {
	cfg := m.Config
	var reqs []*gen.Request
	add := func(set string, sc setConfig) {
		if len(sc.Functions) == 0 {
			return
		}
		out := sc.Out
		if out == "" {
			out = cfg.Out
		}
		if !filepath.IsAbs(out) {
			out = filepath.Join(m.Root, filepath.FromSlash(out))
		}
		pkg := sc.Package
		if pkg == "" {
			pkg = cfg.Package
		}
		if pkg == "" {
			pkg = defaultPackage(out)
		}
		reqs = append(reqs, &gen.Request{
			Symbols:       sc.Functions,
			OutputDir:     out,
			SourceSet:     set,
			Package:       pkg,
			Profiles:      cfg.ABI,
			CallbackSlots: cfg.CallbackSlots,
			RuntimeImport: cfg.RuntimeImport,
		})
	}
	add(emit.SourceSetMain, cfg.Main)
	add(emit.SourceSetTest, cfg.Test)
	return reqs
}
