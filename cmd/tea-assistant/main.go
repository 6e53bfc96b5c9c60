package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingly-dev/tea-assistant/internal/command"
)

var rootCmd = &cobra.Command{
	Use:   "tea-assistant",
	Short: "Tea Assistant - streaming chat assistant for the tea shop",
	Long: `Tea Assistant relays customer chat to an OpenAI-compatible model and
streams the reply back as plain text. The model can call get_time and
search_docs while answering.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logrus.SetLevel(logrus.TraceLevel)
		}
	},
}

// Build information variables
var (
	// Set by compiler via -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
	platform  = "unknown"

	// Global configuration file flag
	configPath string
)

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default: ~/.tea-assistant/config.yaml)")

	build := command.BuildInfo{
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
		GoVersion: goVersion,
		Platform:  platform,
	}

	rootCmd.AddCommand(command.VersionCommand(build))
	rootCmd.AddCommand(command.ServeCommand(&configPath, build))
	rootCmd.AddCommand(command.TokenCommand(&configPath))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
