package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=..." by release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildInfo is the version information reported by the version command.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	info := currentBuildInfo(debug.ReadBuildInfo)
	if jsonOut {
		return printJSON(info)
	}

	fmt.Printf("earlyalloc %s\n", info.Version)
	fmt.Printf("  commit: %s\n", info.Commit)
	if info.Modified {
		fmt.Printf("  modified: true\n")
	}
	fmt.Printf("  built: %s\n", info.Date)
	fmt.Printf("  go: %s\n", info.GoVersion)
	return nil
}

// currentBuildInfo fills the fields left at their defaults by the linker
// from the module and VCS data embedded by the go command.
func currentBuildInfo(read func() (*debug.BuildInfo, bool)) buildInfo {
	info := buildInfo{Version: version, Commit: commit, Date: date, GoVersion: "unknown"}

	bi, ok := read()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
