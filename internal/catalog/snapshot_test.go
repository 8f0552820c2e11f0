package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	sources, err := EmbeddedSources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	cache, err := OpenSnapshotCache(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}

	first, res, err := LoadCached(sources, cache)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if res.Hit || res.StoreErr != nil {
		t.Fatalf("first load: %+v", res)
	}

	second, res, err := LoadCached(sources, cache)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !res.Hit {
		t.Fatalf("second load missed the snapshot")
	}
	if first.Digest() != second.Digest() || first.Len() != second.Len() || first.Version() != second.Version() {
		t.Fatalf("snapshot catalog differs from fresh catalog")
	}
	a, _ := first.Lookup("GetWindowTextW")
	b, _ := second.Lookup("GetWindowTextW")
	if len(a.Function.Params) != len(b.Function.Params) || !a.Function.Params[1].Type.Equal(b.Function.Params[1].Type) {
		t.Fatalf("function decoded differently from snapshot")
	}
	if b.Function.Params[1].Buffer == nil || b.Function.Params[1].Buffer.QueryFn != "GetWindowTextLengthW" {
		t.Fatalf("buffer contract lost in snapshot")
	}
}

func TestCorruptSnapshotFallsBack(t *testing.T) {
	sources, err := EmbeddedSources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	cache, err := OpenSnapshotCache(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	p := cache.pathFor(DigestSources(sources))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("not msgpack"), 0o600); err != nil {
		t.Fatal(err)
	}
	cat, res, err := LoadCached(sources, cache)
	if err != nil || cat == nil {
		t.Fatalf("load with corrupt snapshot: %v", err)
	}
	if res.Hit {
		t.Fatalf("corrupt snapshot reported as hit")
	}
}
