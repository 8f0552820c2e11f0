package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"winapigen/internal/trace"
)

var activeTracer trace.Tracer = trace.Nop

// setupTracing builds the tracer from flags and the environment and puts it
// into the command context.
func setupTracing(cmd *cobra.Command, cfg envConfig) error {
	flags := cmd.Root().PersistentFlags()
	output := stringSetting(cmd, "trace", cfg.Trace)
	levelStr, err := flags.GetString("trace-level")
	if err != nil {
		return fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := flags.GetString("trace-mode")
	if err != nil {
		return fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	ringSize, err := flags.GetInt("trace-ring-size")
	if err != nil {
		return fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return err
	}
	// An output without a level means stage tracing.
	if level == trace.LevelOff && output != "" && !flags.Lookup("trace-level").Changed {
		level = trace.LevelStage
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return nil
	}
	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return err
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: output,
		RingSize:   ringSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	activeTracer = tracer
	ctx := trace.WithTracer(cmd.Context(), tracer)
	ctx, span := trace.Start(ctx, trace.ScopeRun, cmd.CommandPath())
	runSpan = span
	cmd.SetContext(ctx)
	return nil
}

var runSpan *trace.Span

// finishRun stops the profilers and closes the run span and the tracer. On
// failure the ring buffer, if any, is dumped to stderr.
func finishRun(cmd *cobra.Command, runErr error) {
	stopProfiling(cmd)
	tracer := activeTracer
	if tracer == trace.Nop {
		return
	}
	activeTracer = trace.Nop
	detail := ""
	if runErr != nil {
		detail = runErr.Error()
	}
	runSpan.End(detail)

	if runErr != nil {
		var ring *trace.RingTracer
		switch t := tracer.(type) {
		case *trace.RingTracer:
			ring = t
		case *trace.MultiTracer:
			ring = t.Ring()
		}
		if ring != nil {
			fmt.Fprintln(os.Stderr, "trace: last events before failure:")
			if err := ring.Dump(os.Stderr, trace.FormatText); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
			}
		}
	}
	if err := tracer.Flush(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
	}
	if err := tracer.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
	}
}
