package fuzztests

import (
	"fmt"
	"testing"

	"winapigen/internal/catalog"
	"winapigen/internal/layout"
	"winapigen/internal/resolve"
	"winapigen/internal/testkit"
)

func FuzzParseTypeRef(f *testing.F) {
	addTypeRefSeeds(f)
	f.Fuzz(func(t *testing.T, s string) {
		ref, err := catalog.ParseTypeRef(s)
		if err != nil {
			return
		}
		again, err := catalog.ParseTypeRef(ref.String())
		if err != nil {
			t.Fatalf("%q printed as %q which does not parse: %v", s, ref.String(), err)
		}
		if !again.Equal(ref) {
			t.Fatalf("%q: round trip changed %s into %s", s, ref, again)
		}
	})
}

func FuzzParseGUID(f *testing.F) {
	addGUIDSeeds(f)
	f.Fuzz(func(t *testing.T, s string) {
		g, err := catalog.ParseGUID(s)
		if err != nil {
			return
		}
		text := fmt.Sprintf("{%08X-%04X-%04X-%X-%X}", g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:])
		again, err := catalog.ParseGUID(text)
		if err != nil {
			t.Fatalf("%q printed as %q which does not parse: %v", s, text, err)
		}
		if again != g {
			t.Fatalf("%q: round trip changed %+v into %+v", s, g, again)
		}
	})
}

// FuzzLoadSources adds an arbitrary file next to the embedded catalog. Loading
// must never panic; when it succeeds every struct must resolve and lay out
// consistently on every profile.
func FuzzLoadSources(f *testing.F) {
	addCatalogSeeds(f)
	base := embeddedSources(f)
	f.Fuzz(func(t *testing.T, data []byte) {
		sources := append(append([]catalog.Source(nil), base...), catalog.Source{Name: "zz_fuzz.toml", Data: data})
		cat, err := catalog.LoadSources(sources)
		if err != nil {
			return
		}
		if cat.Version() == "" {
			t.Fatalf("catalog loaded without a version")
		}
		checkAggregates(t, cat)
	})
}

func checkAggregates(t *testing.T, cat *catalog.Catalog) {
	t.Helper()
	var names []string
	for _, name := range cat.Names() {
		e, _ := cat.Lookup(name)
		if e.Kind == catalog.KindStruct || e.Kind == catalog.KindUnion {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	m, err := resolve.Resolve(cat, names)
	if err != nil {
		t.Fatalf("resolve aggregates of a valid catalog: %v", err)
	}
	if err := testkit.CheckOrder(m); err != nil {
		t.Fatalf("order: %v", err)
	}
	for _, p := range cat.Profiles() {
		engine := layout.New(layout.TargetFor(p), cat)
		for _, name := range names {
			l, err := engine.LayoutNamed(name)
			if err != nil {
				// documented sizes are checked by layout.Verify, not at load time
				continue
			}
			if err := testkit.CheckLayout(p.Name+" "+name, l); err != nil {
				t.Fatalf("%v", err)
			}
		}
	}
}

func TestEmbeddedCatalogInvariants(t *testing.T) {
	cat, err := catalog.Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	checkAggregates(t, cat)
}
