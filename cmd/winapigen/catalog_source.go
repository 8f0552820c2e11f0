package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"winapigen/internal/catalog"
	"winapigen/internal/trace"
)

// loadCatalog reads the embedded or external catalog, going through the
// snapshot cache unless it is disabled.
func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	cfg := readEnv()
	dir := stringSetting(cmd, "catalog", cfg.Catalog)
	noCache := boolSetting(cmd, "no-cache", cfg.NoCache)

	ctx, span := trace.Start(cmd.Context(), trace.ScopeStage, "catalog")
	var (
		sources []catalog.Source
		err     error
	)
	if dir == "" {
		sources, err = catalog.EmbeddedSources()
	} else {
		sources, err = catalog.ReadSources(os.DirFS(dir), ".")
	}
	if err != nil {
		span.End(err.Error())
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cache *catalog.SnapshotCache
	if !noCache {
		cacheDir := cfg.CacheDir
		if cacheDir == "" {
			cacheDir, err = catalog.DefaultCacheDir("winapigen")
		}
		if err == nil {
			cache, err = catalog.OpenSnapshotCache(cacheDir)
		}
		if err != nil {
			trace.Point(ctx, trace.ScopeStage, "cache-disabled", err.Error())
			cache = nil
		}
	}

	cat, res, err := catalog.LoadCached(sources, cache)
	if err != nil {
		span.End(err.Error())
		return nil, err
	}
	if res.StoreErr != nil && !quiet(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: catalog snapshot not stored: %v\n", res.StoreErr)
	}
	span.WithExtra("version", cat.Version()).
		WithExtra("entries", fmt.Sprint(cat.Len())).
		WithExtra("cache_hit", fmt.Sprint(res.Hit)).
		End("")
	return cat, nil
}
