package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"winapigen/internal/emit"
	"winapigen/internal/gen"
	"winapigen/internal/observ"
)

var generateCmd = &cobra.Command{
	Use:   "generate [flags] [names...]",
	Short: "Generate bindings for the named symbols",
	Long: `Generate resolves the named catalog symbols and everything they depend on,
then writes the Go bindings into --out. This is the entry point build systems
call, once for the main source set and once for the test source set.`,
	RunE: generateExecution,
}

func init() {
	f := generateCmd.Flags()
	f.StringP("out", "o", "", "output directory (required)")
	f.String("source-set", emit.SourceSetMain, "source set (main|test)")
	f.StringP("package", "p", "", "Go package name (default: base name of --out)")
	f.StringSlice("abi", nil, "ABI profiles to generate for (default: all catalog profiles)")
	f.String("functions-file", "", "read symbol names from a file, one per line (- for stdin)")
	f.Int("callback-slots", emit.DefaultCallbackSlots, "callbacks of one type registrable at once")
	f.String("runtime-import", emit.DefaultRuntimeImport, "import path of the runtime package")
	f.Bool("dry-run", false, "run every stage but write nothing")
	_ = generateCmd.MarkFlagRequired("out") //nolint:errcheck
}

func generateExecution(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	out, _ := flags.GetString("out")
	set, _ := flags.GetString("source-set")
	pkg, _ := flags.GetString("package")
	abis, _ := flags.GetStringSlice("abi")
	namesFile, _ := flags.GetString("functions-file")
	slots, _ := flags.GetInt("callback-slots")
	runtimeImport, _ := flags.GetString("runtime-import")
	dryRun, _ := flags.GetBool("dry-run")

	names := append([]string(nil), args...)
	if namesFile != "" {
		fromFile, err := readNamesFile(cmd.InOrStdin(), namesFile)
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if pkg == "" {
		pkg = defaultPackage(out)
	}

	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	timer := newTimer(cmd)
	req := &gen.Request{
		Symbols:       names,
		OutputDir:     out,
		SourceSet:     set,
		Package:       pkg,
		Profiles:      abis,
		CallbackSlots: slots,
		RuntimeImport: runtimeImport,
		DryRun:        dryRun,
		Timer:         timer,
	}
	res, err := gen.Generate(cmd.Context(), cat, req)
	if err != nil {
		return err
	}
	if !quiet(cmd) {
		printResult(cmd.OutOrStdout(), res, out, dryRun)
	}
	printTimings(cmd, timer, []*gen.Result{res})
	return nil
}

// readNamesFile reads whitespace or comma separated names; '#' starts a
// comment.
func readNamesFile(stdin io.Reader, path string) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("functions file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		names = append(names, strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("functions file: %w", err)
	}
	return names, nil
}

// defaultPackage derives a package name from the output directory.
func defaultPackage(out string) string {
	abs, err := filepath.Abs(out)
	if err != nil {
		abs = out
	}
	name := strings.ToLower(filepath.Base(abs))
	name = strings.Map(func(r rune) rune {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, name)
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return "win"
	}
	return name
}

func printResult(w io.Writer, res *gen.Result, out string, dryRun bool) {
	if dryRun {
		fmt.Fprintf(w, "%s: %d files, %d entries (dry run)\n", res.Unit, len(res.Artifacts), res.Model.Len())
		for _, a := range res.Artifacts {
			fmt.Fprintf(w, "  %s (%d bytes)\n", a.Path, len(a.Content))
		}
		return
	}
	fmt.Fprintf(w, "%s: wrote %d, unchanged %d, removed %d in %s\n",
		res.Unit, len(res.Written), len(res.Unchanged), len(res.Removed), out)
}

func newTimer(cmd *cobra.Command) *observ.Timer {
	on, _ := cmd.Root().PersistentFlags().GetBool("timings")
	if !on {
		return nil
	}
	return observ.NewTimer()
}
