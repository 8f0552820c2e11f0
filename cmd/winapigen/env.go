package main

import (
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

// envConfig holds the environment overrides. Explicit flags win over them.
type envConfig struct {
	Catalog  string // WINAPIGEN_CATALOG: external catalog directory
	CacheDir string // WINAPIGEN_CACHE_DIR: snapshot cache location
	NoCache  bool   // WINAPIGEN_NO_CACHE: disable the snapshot cache
	Trace    string // WINAPIGEN_TRACE: trace output when --trace is not given
}

func readEnv() envConfig {
	return envConfig{
		Catalog:  env.Str("WINAPIGEN_CATALOG"),
		CacheDir: env.Str("WINAPIGEN_CACHE_DIR"),
		NoCache:  env.Bool("WINAPIGEN_NO_CACHE"),
		Trace:    env.Str("WINAPIGEN_TRACE"),
	}
}

// stringSetting returns the flag value when set on the command line, else
// fallback.
func stringSetting(cmd *cobra.Command, flag, fallback string) string {
	f := cmd.Root().PersistentFlags().Lookup(flag)
	if f == nil {
		return fallback
	}
	if f.Changed || fallback == "" {
		return f.Value.String()
	}
	return fallback
}

func boolSetting(cmd *cobra.Command, flag string, fallback bool) bool {
	f := cmd.Root().PersistentFlags().Lookup(flag)
	if f == nil || !f.Changed {
		return fallback
	}
	return f.Value.String() == "true"
}
