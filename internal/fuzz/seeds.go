package fuzztests

import (
	"regexp"
	"testing"

	"winapigen/internal/catalog"
)

const maxSeedBytes = 64 << 10

var (
	typeRefPattern = regexp.MustCompile(`(?m)(?:type|returns)\s*=\s*"([^"]*)"`)
	guidPattern    = regexp.MustCompile(`\{[0-9A-Fa-f-]{36}\}`)
)

func embeddedSources(f *testing.F) []catalog.Source {
	f.Helper()
	sources, err := catalog.EmbeddedSources()
	if err != nil {
		f.Fatalf("embedded sources: %v", err)
	}
	return sources
}

// addCatalogSeeds adds every embedded catalog file.
func addCatalogSeeds(f *testing.F) {
	for _, src := range embeddedSources(f) {
		f.Add(clampSeed(src.Data))
	}
	f.Add([]byte{})
	f.Add([]byte("version = \"1\"\n"))
}

// addTypeRefSeeds adds every type expression written in the embedded catalog.
func addTypeRefSeeds(f *testing.F) {
	seen := make(map[string]bool)
	for _, src := range embeddedSources(f) {
		for _, m := range typeRefPattern.FindAllSubmatch(src.Data, -1) {
			s := string(m[1])
			if !seen[s] {
				seen[s] = true
				f.Add(s)
			}
		}
	}
	for _, s := range []string{"", "*", "[", "[0]u8", "[4]*wstr", "**void", "[2][3]i16"} {
		f.Add(s)
	}
}

func addGUIDSeeds(f *testing.F) {
	for _, src := range embeddedSources(f) {
		for _, m := range guidPattern.FindAll(src.Data, -1) {
			f.Add(string(m))
		}
	}
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("{zzzzzzzz-0000-0000-0000-000000000000}")
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
