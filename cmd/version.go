package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parthib/anysite/internal/inference"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("AnySite %s\n", AppVersion)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Println()

		fmt.Println("Available models:")
		for i, m := range inference.CodeModels() {
			marker := " "
			if i == 0 {
				marker = "*"
			}
			fmt.Printf("  %s %s (context %d, output %d)\n", marker, m.ID, m.MaxInputTokens, m.MaxTokens)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
