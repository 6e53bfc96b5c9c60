package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo is set by the linker in main
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	Platform  string
}

// VersionCommand prints build information
func VersionCommand(build BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tea Assistant\n")
			fmt.Fprintf(out, "Version:    %s\n", build.Version)
			fmt.Fprintf(out, "Git Commit: %s\n", build.GitCommit)
			fmt.Fprintf(out, "Build Time: %s\n", build.BuildTime)
			fmt.Fprintf(out, "Go Version: %s\n", build.GoVersion)
			fmt.Fprintf(out, "Platform:   %s\n", build.Platform)
		},
	}
}
