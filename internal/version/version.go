// Package version holds build information of the winapigen CLI. The
// variables can be overridden at build time via -ldflags.
package version

import (
	"strings"

	"github.com/fatih/color"
)

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// Info is the JSON form of the build information.
type Info struct {
	Version        string `json:"version"`
	GitCommit      string `json:"git_commit,omitempty"`
	GitMessage     string `json:"git_message,omitempty"`
	BuildDate      string `json:"build_date,omitempty"`
	CatalogVersion string `json:"catalog_version,omitempty"`
}

func Current(catalogVersion string) Info {
	return Info{
		Version:        Version,
		GitCommit:      GitCommit,
		GitMessage:     GitMessage,
		BuildDate:      BuildDate,
		CatalogVersion: catalogVersion,
	}
}

// Pretty renders Version with major, minor and patch in their own colours.
// Anything after the patch number is left plain.
func Pretty() string {
	parts := strings.SplitN(Version, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	patch, rest := parts[2], ""
	if i := strings.IndexAny(patch, "-+"); i >= 0 {
		patch, rest = patch[:i], patch[i:]
	}
	return versionMajorColor.Sprint(parts[0]) + "." +
		versionMinorColor.Sprint(parts[1]) + "." +
		versionPatchColor.Sprint(patch) + rest
}
