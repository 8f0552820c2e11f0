package resolve

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
)

func embedded(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	return cat
}

func TestEnumWindowsClosure(t *testing.T) {
	m, err := Resolve(embedded(t), []string{"EnumWindows"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"BOOL", "LPARAM", "HWND", "WNDENUMPROC", "EnumWindows"}
	for _, name := range want {
		if _, ok := m.Entry(name); !ok {
			t.Fatalf("closure misses %s: %v", name, m.Order)
		}
	}
	if m.Len() != len(want) {
		t.Fatalf("closure = %v", m.Order)
	}
	wantTiers := [][]string{{"BOOL", "HWND", "LPARAM"}, {"WNDENUMPROC"}, {"EnumWindows"}}
	if !reflect.DeepEqual(m.Tiers, wantTiers) {
		t.Fatalf("tiers = %v, want %v", m.Tiers, wantTiers)
	}
	if m.Via["WNDENUMPROC"] != "EnumWindows" {
		t.Fatalf("via = %v", m.Via)
	}
}

func TestClosureIsOrderIndependent(t *testing.T) {
	cat := embedded(t)
	a, err := Resolve(cat, []string{"GetWindowInfo", "EnumWindows", "FormatMessageW"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Resolve(cat, []string{"FormatMessageW", "EnumWindows", "GetWindowInfo", "EnumWindows"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Order, b.Order) || !reflect.DeepEqual(a.Tiers, b.Tiers) {
		t.Fatalf("orders differ:\n%v\n%v", a.Order, b.Order)
	}
	if !reflect.DeepEqual(a.RequestedNames(), []string{"EnumWindows", "FormatMessageW", "GetWindowInfo"}) {
		t.Fatalf("requested = %v", a.RequestedNames())
	}
}

func TestClosureIsComplete(t *testing.T) {
	m, err := Resolve(embedded(t), []string{"GetWindowInfo", "SHGetKnownFolderPath", "RegOpenKeyExW"})
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[string]int, len(m.Order))
	for i, name := range m.Order {
		pos[name] = i
	}
	for _, name := range m.Order {
		e, _ := m.Entry(name)
		for _, ref := range e.Refs() {
			at, ok := pos[ref]
			if !ok {
				t.Fatalf("%s refers to %s outside the closure", name, ref)
			}
			if at >= pos[name] {
				t.Fatalf("%s ordered before its dependency %s", name, ref)
			}
		}
	}
	// release functions come along
	for _, name := range []string{"CoTaskMemFree", "RegCloseKey", "RECT"} {
		if _, ok := m.Entry(name); !ok {
			t.Fatalf("closure misses %s", name)
		}
	}
}

func TestUnknownSymbols(t *testing.T) {
	_, err := Resolve(embedded(t), []string{"EnumWindows", "NoSuchFunction", "AlsoMissing"})
	if !errors.Is(err, diag.ErrUnknownSymbol) {
		t.Fatalf("expected unknown symbol error, got %v", err)
	}
	var subjects []string
	for _, d := range diag.Diagnostics(err) {
		subjects = append(subjects, d.Subject)
	}
	slices.Sort(subjects)
	if !reflect.DeepEqual(subjects, []string{"AlsoMissing", "NoSuchFunction"}) {
		t.Fatalf("subjects = %v", subjects)
	}
}

type mapSource map[string]*catalog.Entry

func (m mapSource) Lookup(name string) (*catalog.Entry, bool) {
	e, ok := m[name]
	return e, ok
}

func TestTransitiveUnknownNamesReferrer(t *testing.T) {
	src := mapSource{
		"HWND": {Name: "HWND", Kind: catalog.KindAlias, Alias: &catalog.Alias{Target: catalog.Named("GONE")}},
	}
	_, err := Resolve(src, []string{"HWND"})
	if !errors.Is(err, diag.ErrUnknownSymbol) {
		t.Fatalf("expected unknown symbol error, got %v", err)
	}
	ds := diag.Diagnostics(err)
	if len(ds) != 1 || ds[0].Subject != "GONE" || len(ds[0].Notes) != 1 || ds[0].Notes[0].Subject != "HWND" {
		t.Fatalf("diagnostics = %+v", ds)
	}
}

func TestEmptyRequest(t *testing.T) {
	_, err := Resolve(embedded(t), []string{" ", ""})
	if !errors.Is(err, diag.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
