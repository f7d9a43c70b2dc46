package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate pipeline statistics",
	Run: func(cmd *cobra.Command, args []string) {
		stats, err := store.GetStatistics(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== tbcv Statistics ==="))

		fmt.Printf("Artifacts:        %d\n", stats.TotalArtifacts)
		fmt.Printf("Validations:      %d\n", stats.TotalValidations)
		fmt.Printf("  passed:         %d\n", stats.PassedValidations)
		fmt.Printf("  failed:         %d\n", stats.FailedValidations)
		fmt.Printf("  errored:        %d\n", stats.ErroredValidations)
		fmt.Printf("Findings:         %d\n", stats.TotalFindings)
		fmt.Printf("Recommendations:  %d\n", stats.Recommendations)
		fmt.Printf("  awaiting review: %d\n", stats.PendingDecisions)
		fmt.Printf("Pass rate:        %.0f%%\n\n", stats.PassRate*100)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
