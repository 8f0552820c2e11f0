// Command winapigen generates Go bindings for Windows API symbols from a
// curated catalog.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"winapigen/internal/diag"
	"winapigen/internal/diagfmt"
	"winapigen/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "winapigen",
	Short: "Windows API binding generator for Go",
	Long: `winapigen turns a list of Windows API symbol names into compilable Go
bindings: structs with exact native layout, function wrappers, callback
trampolines and error helpers.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupRun,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { finishRun(cmd, nil) },
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")
	flags.String("diagnostics", "pretty", "diagnostics format (pretty|json|sarif)")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	flags.String("catalog", "", "external catalog directory (default: embedded catalog, or $WINAPIGEN_CATALOG)")
	flags.Bool("no-cache", false, "do not use the catalog snapshot cache")
	flags.String("trace", "", "trace output file (- for stderr, .ndjson for JSON)")
	flags.String("trace-level", "off", "trace level (off|error|stage|profile|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.String("cpu-profile", "", "write a CPU profile to file")
	flags.String("mem-profile", "", "write a heap profile to file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		finishRun(rootCmd, err)
		reportError(rootCmd, os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// setupRun applies environment overrides, colour, profiling and tracing
// before any command runs.
func setupRun(cmd *cobra.Command, args []string) error {
	cfg := readEnv()
	if err := applyColor(cmd); err != nil {
		return err
	}
	if err := setupProfiling(cmd); err != nil {
		return err
	}
	return setupTracing(cmd, cfg)
}

func applyColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch strings.ToLower(mode) {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !isTerminal(os.Stderr) || os.Getenv("NO_COLOR") != ""
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

// reportError prints err in the selected diagnostics format.
func reportError(cmd *cobra.Command, w io.Writer, err error) {
	flags := cmd.Root().PersistentFlags()
	format, _ := flags.GetString("diagnostics")
	maxDiags, _ := flags.GetInt("max-diagnostics")
	items := diag.Diagnostics(err)

	var werr error
	switch strings.ToLower(format) {
	case "json":
		if len(items) == 0 {
			items = []diag.Diagnostic{diag.NewError(diag.UnknownCode, "", err.Error())}
		}
		werr = diagfmt.JSON(w, items, diagfmt.JSONOpts{IncludeNotes: true, Max: maxDiags})
	case "sarif":
		if len(items) == 0 {
			items = []diag.Diagnostic{diag.NewError(diag.UnknownCode, "", err.Error())}
		}
		werr = diagfmt.Sarif(w, items, diagfmt.SarifRunMeta{
			ToolName:       "winapigen",
			ToolVersion:    version.Version,
			InvocationArgs: os.Args[1:],
		})
	default:
		werr = diagfmt.Error(w, err, diagfmt.PrettyOpts{Color: !color.NoColor, ShowNotes: true, Max: maxDiags})
	}
	if werr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

// exitCode maps error classes to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, diag.ErrUnknownSymbol):
		return 2
	case errors.Is(err, diag.ErrUnsupportedMarshalling):
		return 3
	case errors.Is(err, diag.ErrConfiguration):
		return 4
	case errors.Is(err, diag.ErrEmission):
		return 5
	case errors.Is(err, diag.ErrEmissionIO):
		return 6
	default:
		return 1
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func quiet(cmd *cobra.Command) bool {
	q, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	return q
}
