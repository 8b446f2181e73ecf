package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/petal-labs/onething/providers/onething"
)

// Version information set at build time via ldflags.
// Example: go build -ldflags "-X github.com/petal-labs/onething/cli/commands.Version=v1.0.0"
var (
	// Version is the semantic version of the CLI.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

type versionInfo struct {
	Version    string `json:"version"`
	SDKVersion string `json:"sdkVersion"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:    Version,
		SDKVersion: onething.Version,
		Commit:     Commit,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information including version, SDK version, commit, build date, and Go runtime.`,
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			v := currentVersion()
			if a.jsonOutput {
				return writeJSON(a.stdout, v)
			}

			fmt.Fprintf(a.stdout, "onething %s\n", v.Version)
			fmt.Fprintf(a.stdout, "  sdk:        %s\n", v.SDKVersion)
			fmt.Fprintf(a.stdout, "  commit:     %s\n", v.Commit)
			fmt.Fprintf(a.stdout, "  built:      %s\n", v.BuildDate)
			fmt.Fprintf(a.stdout, "  go version: %s\n", v.GoVersion)
			fmt.Fprintf(a.stdout, "  platform:   %s\n", v.Platform)
			return nil
		}),
	}
}
