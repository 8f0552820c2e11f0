package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"winapigen/internal/gen"
	"winapigen/internal/observ"
)

// printTimings writes per-unit stage times and the timer summary to stderr
// when --timings is set.
func printTimings(cmd *cobra.Command, timer *observ.Timer, results []*gen.Result) {
	if timer == nil {
		return
	}
	out := cmd.ErrOrStderr()
	for _, res := range results {
		if res == nil {
			continue
		}
		printStageTimings(out, res)
	}
	fmt.Fprint(out, timer.Summary())
}

func printStageTimings(out io.Writer, res *gen.Result) {
	fmt.Fprintf(out, "%s:", res.Unit)
	for _, s := range gen.Stages {
		if res.Timings.Has(s) {
			fmt.Fprintf(out, " %s %.1f ms", s, toMillis(res.Timings.Duration(s)))
		}
	}
	fmt.Fprintf(out, " (total %.1f ms)\n", toMillis(res.Timings.Sum()))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
