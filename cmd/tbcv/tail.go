package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/types"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Watch validation activity",
	Long: `Display recent validation results and follow new ones as they are
recorded. In follow mode the store is polled until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		follow, _ := cmd.Flags().GetBool("follow")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		if follow {
			runTailFollow(ctx, limit)
		} else {
			runTailOnce(ctx, limit)
		}
	},
}

func init() {
	tailCmd.Flags().BoolP("follow", "f", false, "Follow mode - watch for new validations (Ctrl+C to stop)")
	tailCmd.Flags().IntP("limit", "n", 20, "Number of recent validations to show initially")
	rootCmd.AddCommand(tailCmd)
}

func runTailOnce(ctx context.Context, limit int) {
	results, err := store.RecentValidations(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching validations: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s\n", gray("No validations yet"))
		return
	}
	// Newest last.
	for i := len(results) - 1; i >= 0; i-- {
		displayValidation(results[i])
	}
}

func runTailFollow(ctx context.Context, initialLimit int) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	runTailOnce(ctx, initialLimit)

	seen := make(map[string]bool)
	if results, err := store.RecentValidations(ctx, initialLimit); err == nil {
		for _, r := range results {
			seen[r.ID] = true
		}
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\n%s\n", gray("Watching for new validations..."))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := store.RecentValidations(ctx, initialLimit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error fetching validations: %v\n", err)
				continue
			}
			for i := len(results) - 1; i >= 0; i-- {
				if !seen[results[i].ID] {
					seen[results[i].ID] = true
					displayValidation(results[i])
				}
			}
		}
	}
}

func displayValidation(v *types.ValidationResult) {
	fmt.Println(formatValidationLine(v))
}

func formatValidationLine(v *types.ValidationResult) string {
	gray := color.New(color.FgHiBlack).SprintFunc()

	icon := "○"
	switch v.Status {
	case types.ValidationPassed:
		icon = color.New(color.FgGreen).Sprint("●")
	case types.ValidationFailed:
		icon = color.New(color.FgRed).Sprint("●")
	case types.ValidationError:
		icon = color.New(color.FgYellow).Sprint("●")
	}

	when := v.CreatedAt
	if v.CompletedAt != nil {
		when = *v.CompletedAt
	}
	return fmt.Sprintf("%s %s  %s  %-7s  %d finding(s)",
		gray(when.Format("15:04:05")), icon, v.ID[:8], v.Status, len(v.Findings))
}
