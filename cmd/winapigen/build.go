package main

import (
	"github.com/spf13/cobra"

	"winapigen/internal/gen"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [dir]",
	Short: "Generate every source set listed in winapigen.toml",
	Long: `Build looks for winapigen.toml in dir or its parents and generates the
[main] and [test] source sets concurrently.`,
	Args: cobra.MaximumNArgs(1),
	RunE: buildExecution,
}

func init() {
	buildCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	buildCmd.Flags().Bool("dry-run", false, "run every stage but write nothing")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	manifest, err := loadProjectManifest(dir)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	timer := newTimer(cmd)
	reqs := manifest.requests()
	for _, req := range reqs {
		req.Timer = timer
		req.DryRun = dryRun
	}

	var results []*gen.Result
	if !quiet(cmd) && shouldUseTUI(mode) {
		results, err = runWithUI(cmd.Context(), "winapigen build", cat, reqs)
	} else {
		results, err = gen.GenerateAll(cmd.Context(), cat, reqs)
	}
	if !quiet(cmd) {
		for i, res := range results {
			if res != nil {
				printResult(cmd.OutOrStdout(), res, reqs[i].OutputDir, dryRun)
			}
		}
	}
	printTimings(cmd, timer, results)
	return err
}
