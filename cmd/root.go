package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "anysite",
	Short: "AnySite - build any site, just vibe coding",
	Long: `AnySite turns natural-language prompts into single-file HTML documents,
streamed live from an inference backend with incremental preview rendering,
version history and shareable gallery links.

Run "anysite serve" to start the HTTP API server.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
