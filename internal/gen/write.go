package gen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"winapigen/internal/diag"
	"winapigen/internal/emit"
	"winapigen/internal/trace"
)

const (
	stateSchema = 1
	filePrefix  = "zwinapi_"
	tempPattern = ".winapigen-*"
)

// StateFile names the file that records what a run of set generated.
func StateFile(set string) string {
	if set == emit.SourceSetTest {
		return ".winapigen_test.state"
	}
	return ".winapigen.state"
}

// state is the msgpack record of one successful run.
type state struct {
	Schema    int               `msgpack:"schema"`
	Catalog   string            `msgpack:"catalog"`
	Package   string            `msgpack:"package"`
	SourceSet string            `msgpack:"source_set"`
	Symbols   []string          `msgpack:"symbols"`
	Files     map[string]string `msgpack:"files"` // name -> sha256
}

// readState returns nil when there is no usable earlier state.
func readState(dir, set string) (*state, error) {
	p := filepath.Join(dir, StateFile(set))
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, diag.IOError(diag.IOState, p, err)
	}
	var st state
	if err := msgpack.Unmarshal(data, &st); err != nil || st.Schema != stateSchema {
		return nil, nil
	}
	return &st, nil
}

type writeOutcome struct {
	written   []string
	unchanged []string
	removed   []string
}

// writeArtifacts stages every changed file in a temporary directory next to
// dir, then renames them into dir, records the new state and removes files
// only the earlier run produced. A failure before or during the renames
// leaves dir as it was.
func writeArtifacts(ctx context.Context, dir string, st *state, arts []emit.Artifact) (writeOutcome, error) {
	var out writeOutcome
	abs, err := filepath.Abs(dir)
	if err != nil {
		return out, diag.IOError(diag.IOBadOutput, dir, err)
	}
	if fi, err := os.Stat(abs); err == nil && !fi.IsDir() {
		return out, diag.Errorf(diag.ErrConfiguration, diag.IOBadOutput, dir, "output path is not a directory")
	}
	parent := filepath.Dir(abs)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return out, diag.IOError(diag.IOWrite, parent, err)
	}
	prev, err := readState(abs, st.SourceSet)
	if err != nil {
		return out, err
	}

	tmp, err := os.MkdirTemp(parent, tempPattern)
	if err != nil {
		return out, diag.IOError(diag.IOWrite, parent, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			trace.Point(ctx, trace.ScopeStage, "cleanup", rmErr.Error())
		}
	}()

	st.Files = make(map[string]string, len(arts))
	var staged []string
	for _, a := range arts {
		if a.Path != filepath.Base(a.Path) || !strings.HasPrefix(a.Path, filePrefix) {
			return out, diag.Errorf(diag.ErrEmission, diag.EmtInconsistent, a.Path, "artifact path must be a plain %s file name", filePrefix)
		}
		sum := sha256.Sum256(a.Content)
		st.Files[a.Path] = hex.EncodeToString(sum[:])
		if current(abs, a, prev, st.Files[a.Path]) {
			out.unchanged = append(out.unchanged, a.Path)
			continue
		}
		p := filepath.Join(tmp, a.Path)
		if err := os.WriteFile(p, a.Content, 0o644); err != nil {
			return out, diag.IOError(diag.IOWrite, p, err)
		}
		staged = append(staged, a.Path)
	}
	data, err := msgpack.Marshal(st)
	if err != nil {
		return out, diag.IOError(diag.IOState, StateFile(st.SourceSet), err)
	}
	if err := os.WriteFile(filepath.Join(tmp, StateFile(st.SourceSet)), data, 0o644); err != nil {
		return out, diag.IOError(diag.IOState, filepath.Join(tmp, StateFile(st.SourceSet)), err)
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	_, statErr := os.Stat(abs)
	created := errors.Is(statErr, os.ErrNotExist)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return out, diag.IOError(diag.IOWrite, abs, err)
	}
	if err := install(ctx, tmp, abs, append(staged, StateFile(st.SourceSet))); err != nil {
		if created {
			_ = os.Remove(abs)
		}
		return out, err
	}
	out.written = staged

	if prev != nil {
		stale := make([]string, 0)
		for name := range prev.Files {
			if _, ok := st.Files[name]; !ok && strings.HasPrefix(name, filePrefix) && name == filepath.Base(name) {
				stale = append(stale, name)
			}
		}
		slices.Sort(stale)
		for _, name := range stale {
			p := filepath.Join(abs, name)
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return out, diag.IOError(diag.IOCleanup, p, err)
			}
			out.removed = append(out.removed, name)
		}
	}
	return out, nil
}

// renameFile is os.Rename; tests replace it to inject failures.
var renameFile = os.Rename

type installed struct {
	name     string
	replaced bool
}

// install moves names from tmp into dir. Files being replaced are parked in
// tmp until every rename succeeded; if one fails they are moved back and the
// new files removed, so dir keeps the earlier run's files and state.
func install(ctx context.Context, tmp, dir string, names []string) error {
	backup := filepath.Join(tmp, ".replaced")
	if err := os.Mkdir(backup, 0o755); err != nil {
		return diag.IOError(diag.IOWrite, backup, err)
	}
	var done []installed
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			dst := filepath.Join(dir, done[i].name)
			var err error
			if done[i].replaced {
				err = renameFile(filepath.Join(backup, done[i].name), dst)
			} else {
				err = os.Remove(dst)
			}
			if err != nil {
				trace.Point(ctx, trace.ScopeStage, "rollback", err.Error())
			}
		}
	}
	for _, name := range names {
		dst := filepath.Join(dir, name)
		replaced := false
		if _, err := os.Lstat(dst); err == nil {
			if err := renameFile(dst, filepath.Join(backup, name)); err != nil {
				rollback()
				return diag.IOError(diag.IORename, dst, err)
			}
			replaced = true
		}
		if err := renameFile(filepath.Join(tmp, name), dst); err != nil {
			if replaced {
				done = append(done, installed{name: name, replaced: true})
			}
			rollback()
			return diag.IOError(diag.IORename, dst, err)
		}
		done = append(done, installed{name: name, replaced: replaced})
	}
	return nil
}

// current reports whether dir already holds a's exact content from an
// earlier run.
func current(dir string, a emit.Artifact, prev *state, sum string) bool {
	if prev == nil || prev.Files[a.Path] != sum {
		return false
	}
	have, err := os.ReadFile(filepath.Join(dir, a.Path))
	return err == nil && bytes.Equal(have, a.Content)
}
