package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"winapigen/internal/prof"
)

var profSession *prof.Session

// setupProfiling starts the runtime profilers named by the persistent flags.
func setupProfiling(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPUProfile, err = flags.GetString("cpu-profile"); err != nil {
		return fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.MemProfile, err = flags.GetString("mem-profile"); err != nil {
		return fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.RuntimeTrace, err = flags.GetString("runtime-trace"); err != nil {
		return fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if !opts.Enabled() {
		return nil
	}
	s, err := prof.Start(opts)
	if err != nil {
		return err
	}
	profSession = s
	return nil
}

func stopProfiling(cmd *cobra.Command) {
	s := profSession
	profSession = nil
	if err := s.Stop(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "profiling: %v\n", err)
	}
}
