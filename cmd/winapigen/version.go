package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"winapigen/internal/catalog"
	"winapigen/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build and catalog versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		full, _ := cmd.Flags().GetBool("full")
		catVersion := ""
		if cat, err := catalog.Embedded(); err == nil {
			catVersion = cat.Version()
		}
		return writeVersion(cmd.OutOrStdout(), strings.ToLower(format), full, version.Current(catVersion))
	},
}

func init() {
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().Bool("full", false, "include commit and build date")
}

func writeVersion(w io.Writer, format string, full bool, info version.Info) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "pretty", "":
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
	if _, err := fmt.Fprintf(w, "winapigen %s\n", version.Pretty()); err != nil {
		return err
	}
	if info.CatalogVersion != "" {
		fmt.Fprintf(w, "catalog   %s\n", info.CatalogVersion)
	}
	if full {
		if info.GitCommit != "" {
			fmt.Fprintf(w, "commit    %s\n", info.GitCommit)
		}
		if info.GitMessage != "" {
			fmt.Fprintf(w, "message   %s\n", info.GitMessage)
		}
		if info.BuildDate != "" {
			fmt.Fprintf(w, "built     %s\n", info.BuildDate)
		}
	}
	return nil
}
