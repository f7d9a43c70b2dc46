package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune old validation history",
	Long: `Delete finished validation results older than the retention period.
The most recent runs of each artifact are always kept, as is any run a
recommendation references.`,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")

		retention := cfg.Retention()
		if days > 0 {
			retention.Days = days
		}
		if err := retention.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cutoff := retention.Cutoff(time.Now())
		n, err := store.PruneValidations(cmd.Context(), cutoff, retention.KeepPerArtifact, retention.BatchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning validations: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Pruned %d validation(s) older than %d day(s)\n", green("✓"), n, retention.Days)
		fmt.Printf("  %s\n", gray(fmt.Sprintf("kept the %d most recent run(s) per artifact", retention.KeepPerArtifact)))
	},
}

func init() {
	pruneCmd.Flags().Int("days", 0, "Override the configured retention period in days")
	rootCmd.AddCommand(pruneCmd)
}
