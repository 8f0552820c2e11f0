// Package catalog holds the versioned database of Windows API declarations the
// generator can bind: functions, structs, unions, callbacks, constants and
// aliases, plus the ABI profiles they are laid out for.
//
// A Catalog is validated once, eagerly, when it is built: malformed entries,
// dangling references and reference cycles abort construction with an error of
// class diag.ErrConfiguration listing every problem. After that it is
// read-only and safe for concurrent use.
package catalog

import (
	"embed"
	"io/fs"
	"sort"
	"sync"

	"winapigen/internal/diag"
)

// Catalog is immutable after construction.
type Catalog struct {
	version  string
	digest   Digest
	entries  map[string]*Entry
	names    []string
	profiles []Profile
}

// MaxDiagnostics bounds how many construction problems are collected.
const MaxDiagnostics = 200

// Load reads and validates every *.toml file in dir.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	sources, err := ReadSources(fsys, dir)
	if err != nil {
		return nil, &diag.Error{
			Class:       diag.ErrConfiguration,
			Diagnostics: []diag.Diagnostic{diag.NewError(diag.CatDecode, dir, err.Error())},
			Err:         err,
		}
	}
	return LoadSources(sources)
}

// LoadSources decodes and validates already-read catalog files.
func LoadSources(sources []Source) (*Catalog, error) {
	bag := diag.NewBag(MaxDiagnostics)
	d := decodeSources(sources, bag)
	return build(d, DigestSources(sources), bag)
}

// New validates programmatically built entries.
func New(version string, profiles []Profile, entries []*Entry) (*Catalog, error) {
	return build(decoded{version: version, profiles: profiles, entries: entries}, Digest{}, diag.NewBag(MaxDiagnostics))
}

func build(d decoded, digest Digest, bag *diag.Bag) (*Catalog, error) {
	r := diag.BagReporter{Bag: bag}
	c := &checker{
		r:        r,
		entries:  make(map[string]*Entry, len(d.entries)),
		profiles: make(map[string]Profile, len(d.profiles)),
		goarches: make(map[string]bool, len(d.profiles)),
	}
	c.checkProfiles(d.profiles)

	unique := make([]*Entry, 0, len(d.entries))
	for _, e := range d.entries {
		if e.Name == "" || !isIdent(e.Name) {
			c.errorf(diag.CatBadEntry, e.File, "%s has an invalid name %q", e.Kind, e.Name)
			continue
		}
		if prev, dup := c.entries[e.Name]; dup {
			diag.ReportError(r, diag.CatDuplicateName, e.Name, "declared more than once").
				WithNote(prev.File, "first declared here").Emit()
			continue
		}
		c.entries[e.Name] = e
		unique = append(unique, e)
	}
	for _, e := range unique {
		c.checkEntry(e)
	}
	checkGraph(unique, r)

	if err := diag.FromBag(diag.ErrConfiguration, bag); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(unique))
	for _, e := range unique {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return &Catalog{
		version:  d.version,
		digest:   digest,
		entries:  c.entries,
		names:    names,
		profiles: d.profiles,
	}, nil
}

// Lookup returns the entry called name.
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

func (c *Catalog) Version() string { return c.version }

func (c *Catalog) Digest() Digest { return c.digest }

func (c *Catalog) Len() int { return len(c.names) }

// Names returns all entry names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Profiles returns the ABI profiles in declaration order; the first one is
// the primary profile.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

func (c *Catalog) Profile(name string) (Profile, bool) {
	for _, p := range c.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Underlying follows alias chains down to a primitive, a pointer, a string or
// a non-alias entry.
func (c *Catalog) Underlying(t TypeRef) TypeRef {
	return underlying(c.Lookup, t)
}

//go:embed data/*.toml
var dataFS embed.FS

var embedded struct {
	once sync.Once
	cat  *Catalog
	err  error
}

// EmbeddedSources returns the catalog files shipped with the binary.
func EmbeddedSources() ([]Source, error) {
	return ReadSources(dataFS, "data")
}

// Embedded returns the catalog shipped with the binary, built once.
func Embedded() (*Catalog, error) {
	embedded.once.Do(func() {
		sources, err := EmbeddedSources()
		if err != nil {
			embedded.err = err
			return
		}
		embedded.cat, embedded.err = LoadSources(sources)
	})
	return embedded.cat, embedded.err
}
