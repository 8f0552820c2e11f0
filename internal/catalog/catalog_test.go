package catalog

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"winapigen/internal/diag"
)

const testProfiles = `
version = "test"

[[profile]]
name = "windows-amd64"
goarch = "amd64"
ptr_size = 8
ptr_align = 8
int64_align = 8
go_int64_align = 8
default_pack = 8
struct_pass = "win64"
float_args = true
`

func loadTestCatalog(t *testing.T, body string) (*Catalog, error) {
	t.Helper()
	fsys := fstest.MapFS{
		"data/catalog.toml": {Data: []byte(testProfiles)},
		"data/entries.toml": {Data: []byte(body)},
	}
	return Load(fsys, "data")
}

func diagnosticCodes(err error) []diag.Code {
	var out []diag.Code
	for _, d := range diag.Diagnostics(err) {
		out = append(out, d.Code)
	}
	return out
}

func hasCode(err error, code diag.Code) bool {
	for _, c := range diagnosticCodes(err) {
		if c == code {
			return true
		}
	}
	return false
}

func TestEmbeddedCatalogLoads(t *testing.T) {
	cat, err := Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	if cat.Version() == "" {
		t.Fatalf("embedded catalog has no version")
	}
	if cat.Len() < 150 {
		t.Fatalf("embedded catalog is unexpectedly small: %d entries", cat.Len())
	}
	for _, name := range []string{"EnumWindows", "WNDENUMPROC", "GetWindowInfo", "WINDOWINFO", "FormatMessageW", "LocalFree"} {
		if _, ok := cat.Lookup(name); !ok {
			t.Fatalf("embedded catalog lacks %s", name)
		}
	}
	if _, ok := cat.Lookup("NoSuchFunction"); ok {
		t.Fatalf("lookup of unknown name succeeded")
	}
	profiles := cat.Profiles()
	if len(profiles) != 3 || profiles[0].Name != "windows-amd64" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}

func TestEmbeddedFunctionShape(t *testing.T) {
	cat, err := Embedded()
	if err != nil {
		t.Fatalf("embedded catalog: %v", err)
	}
	e, _ := cat.Lookup("GetWindowTextW")
	if e.Kind != KindFunction || e.Function.DLL != "user32.dll" || e.Function.CallConv != Stdcall {
		t.Fatalf("unexpected entry: %+v", e)
	}
	_, p := e.Function.Param("lpString")
	if p == nil || p.Buffer == nil || p.Buffer.Kind != BufferQueryFn || p.Buffer.QueryFn != "GetWindowTextLengthW" {
		t.Fatalf("lpString buffer contract not decoded: %+v", p)
	}
	if got := cat.Underlying(Named("HWND")); got.Kind != TPrim || got.Prim != PrimHandle {
		t.Fatalf("HWND underlying = %v", got)
	}
	refs := e.Refs()
	joined := strings.Join(refs, ",")
	for _, want := range []string{"HWND", "INT", "GetWindowTextLengthW"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("refs %v lack %s", refs, want)
		}
	}
}

func TestParseTypeRef(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"u32", "u32", true},
		{"*RECT", "*RECT", true},
		{"[8]u8", "[8]u8", true},
		{"[32]wchar", "[32]wchar", true},
		{"**DWORD", "**DWORD", true},
		{"wstr", "wstr", true},
		{" astr ", "astr", true},
		{"[0]u8", "", false},
		{"[x]u8", "", false},
		{"[4]void", "", false},
		{"9abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTypeRef(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseTypeRef(%q) err = %v, want ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && got.String() != tc.want {
			t.Fatalf("ParseTypeRef(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCycleFailsConstruction(t *testing.T) {
	_, err := loadTestCatalog(t, `
[[struct]]
name = "A"
fields = [ { name = "b", type = "B" } ]

[[struct]]
name = "B"
fields = [ { name = "a", type = "*A" } ]
`)
	if !errors.Is(err, diag.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !hasCode(err, diag.CatCycle) {
		t.Fatalf("cycle not reported: %v", diagnosticCodes(err))
	}
}

func TestDanglingReferenceFailsConstruction(t *testing.T) {
	_, err := loadTestCatalog(t, `
[[function]]
name = "Frob"
dll = "frob.dll"
returns = "BOOL"
params = [ { name = "w", type = "HWND" } ]
`)
	if !errors.Is(err, diag.ErrConfiguration) || !hasCode(err, diag.CatDanglingRef) {
		t.Fatalf("expected dangling reference error, got %v", err)
	}
}

func TestAllProblemsAreCollected(t *testing.T) {
	_, err := loadTestCatalog(t, `
[[alias]]
name = "DWORD"
type = "u32"

[[function]]
name = "Bad"
dll = ""
returns = "DWORD"
failure = "sometimes"
callconv = "fastcall"
params = [
  { name = "x", type = "[4]DWORD" },
  { name = "buf", type = "wstr", dir = "out", buffer = { kind = "fixed", size_param = "missing" } },
]

[[alias]]
name = "DWORD"
type = "u16"
`)
	codes := diagnosticCodes(err)
	for _, want := range []diag.Code{diag.CatDuplicateName, diag.CatBadEntry, diag.CatUnknownConvention, diag.CatBadTypeRef, diag.CatBadBuffer} {
		if !hasCode(err, want) {
			t.Fatalf("missing %s in %v", want.ID(), codes)
		}
	}
}

func TestReturnsLengthNeedsFixedBuffer(t *testing.T) {
	_, err := loadTestCatalog(t, `
[[alias]]
name = "DWORD"
type = "u32"

[[function]]
name = "GetThingW"
dll = "kernel32.dll"
returns = "DWORD"
failure = "zero"
params = [
  { name = "buf", type = "wstr", dir = "out", buffer = { kind = "query", size_param = "n", returns_length = true } },
  { name = "n", type = "DWORD" },
]
`)
	if !hasCode(err, diag.CatBadBuffer) {
		t.Fatalf("returns_length on a query buffer accepted: %v", err)
	}
}

func TestEmbeddedReturnsLength(t *testing.T) {
	cat, err := Embedded()
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	e, ok := cat.Lookup("GetModuleFileNameW")
	if !ok {
		t.Fatalf("GetModuleFileNameW missing")
	}
	_, p := e.Function.Param("lpFilename")
	if p == nil || p.Buffer == nil || !p.Buffer.ReturnsLength {
		t.Fatalf("lpFilename does not report truncation: %+v", p)
	}
}

func TestUnknownKeysAreRejected(t *testing.T) {
	_, err := loadTestCatalog(t, `
[[alias]]
name = "DWORD"
type = "u32"
sigend = true
`)
	if !hasCode(err, diag.CatDecode) {
		t.Fatalf("unknown key accepted: %v", err)
	}
}

func TestDigestTracksContent(t *testing.T) {
	a := []Source{{Name: "a.toml", Data: []byte("x")}}
	b := []Source{{Name: "a.toml", Data: []byte("y")}}
	c := []Source{{Name: "b.toml", Data: []byte("x")}}
	if DigestSources(a) == DigestSources(b) || DigestSources(a) == DigestSources(c) {
		t.Fatalf("digest ignores content or names")
	}
	if DigestSources(a) != DigestSources([]Source{{Name: "a.toml", Data: []byte("x")}}) {
		t.Fatalf("digest is not stable")
	}
}

func TestParseGUID(t *testing.T) {
	g, err := ParseGUID("{FDD39AD0-238F-46AF-ADB4-6C85480369C7}")
	if err != nil {
		t.Fatalf("ParseGUID: %v", err)
	}
	if g.Data1 != 0xFDD39AD0 || g.Data2 != 0x238F || g.Data3 != 0x46AF || g.Data4 != [8]byte{0xAD, 0xB4, 0x6C, 0x85, 0x48, 0x03, 0x69, 0xC7} {
		t.Fatalf("unexpected GUID %+v", g)
	}
	if _, err := ParseGUID("{FDD39AD0-238F}"); err == nil {
		t.Fatalf("malformed GUID accepted")
	}
}
