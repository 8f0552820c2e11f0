package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"winapigen/internal/diag"
)

// bump when the snapshot layout or Entry encoding changes
const snapshotSchema uint16 = 1

type snapshot struct {
	Schema   uint16
	Digest   Digest
	Version  string
	Profiles []Profile
	Entries  []*Entry
}

// SnapshotCache stores decoded catalogs keyed by the digest of their sources,
// so repeated runs skip TOML decoding. Safe for concurrent use.
type SnapshotCache struct {
	mu  sync.RWMutex
	dir string
}

// DefaultCacheDir returns $XDG_CACHE_HOME/app, falling back to ~/.cache/app.
func DefaultCacheDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

func OpenSnapshotCache(dir string) (*SnapshotCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SnapshotCache{dir: dir}, nil
}

func (c *SnapshotCache) Dir() string { return c.dir }

func (c *SnapshotCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "catalog", key.String()+".mp")
}

func (c *SnapshotCache) put(s *snapshot) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(s.Digest)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(s); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), p); err != nil {
		return err
	}
	renamed = true
	return nil
}

func (c *SnapshotCache) get(key Digest) (*snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var s snapshot
	if err := msgpack.NewDecoder(f).Decode(&s); err != nil {
		return nil, false, err
	}
	if s.Schema != snapshotSchema || s.Digest != key {
		return nil, false, nil
	}
	return &s, true, nil
}

// CacheResult tells how LoadCached obtained the catalog.
type CacheResult struct {
	Hit bool
	// StoreErr is set when a fresh snapshot could not be written; the catalog
	// is still valid.
	StoreErr error
}

// LoadCached builds a catalog from sources, reusing a snapshot when one with a
// matching digest exists. Snapshots are validated like fresh data. A nil
// cache behaves like LoadSources.
func LoadCached(sources []Source, cache *SnapshotCache) (*Catalog, CacheResult, error) {
	var res CacheResult
	if cache == nil {
		cat, err := LoadSources(sources)
		return cat, res, err
	}
	digest := DigestSources(sources)
	if s, ok, err := cache.get(digest); err == nil && ok {
		cat, err := build(decoded{version: s.Version, profiles: s.Profiles, entries: s.Entries}, digest, diag.NewBag(MaxDiagnostics))
		if err == nil {
			res.Hit = true
			return cat, res, nil
		}
	}

	cat, err := LoadSources(sources)
	if err != nil {
		return nil, res, err
	}
	s := &snapshot{
		Schema:   snapshotSchema,
		Digest:   digest,
		Version:  cat.version,
		Profiles: cat.profiles,
		Entries:  make([]*Entry, 0, len(cat.names)),
	}
	for _, name := range cat.names {
		s.Entries = append(s.Entries, cat.entries[name])
	}
	res.StoreErr = cache.put(s)
	return cat, res, nil
}
