package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build metadata, injected via -ldflags. Zero values mean a development
// build; vcs details embedded by the toolchain fill the gaps when the
// binary was built without ldflags.
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func buildVersionInfo() versionInfo {
	info := versionInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = setting.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = setting.Value
				}
			}
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		info := buildVersionInfo()
		out := cmd.OutOrStdout()

		if jsonOutput {
			payload, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal version info: %w", err)
			}
			fmt.Fprintln(out, string(payload))
			return nil
		}

		if !verbose {
			fmt.Fprintf(out, "posture version %s\n", info.Version)
			return nil
		}

		fmt.Fprintf(out, "posture %s\n", info.Version)
		if info.Commit != "" {
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		}
		if info.BuildDate != "" {
			fmt.Fprintf(out, "  built:      %s\n", info.BuildDate)
		}
		fmt.Fprintf(out, "  go version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "  platform:   %s\n", info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "Show build and runtime details")
	versionCmd.Flags().Bool("json", false, "Emit version information as JSON")
}
