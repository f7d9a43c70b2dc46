package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show [rec-id]",
	Short: "Show a recommendation in full",
	Long: `Display one recommendation with its decision audit trail, the findings
of the validation it came from, and any enhancement records.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		recID := args[0]

		rec, err := store.GetRecommendation(ctx, recID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s %s\n\n", cyan(rec.ID), statusBadge(rec.Status))
		fmt.Printf("Title:       %s\n", rec.Title)
		if rec.Description != "" {
			fmt.Printf("Description: %s\n", rec.Description)
		}
		fmt.Printf("Created:     %s\n", formatTime(rec.CreatedAt))
		if rec.DecidedAt != nil {
			by := rec.DecidedBy
			if by == "" {
				by = "unknown"
			}
			fmt.Printf("Decided:     %s by %s\n", formatTime(*rec.DecidedAt), by)
		}

		validation, err := store.GetValidation(ctx, rec.ValidationID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading validation: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nValidation %s (%s, %d findings)\n", gray(validation.ID), validation.Status, len(validation.Findings))
		for _, f := range validation.Findings {
			fmt.Printf("  %s %s: %s\n", severityDot(f.Severity), f.ValidatorKind, f.Message)
		}

		for _, preview := range []bool{true, false} {
			record, err := store.GetEnhancement(ctx, rec.ID, preview)
			if err != nil {
				if errors.Is(err, types.ErrNotFound) {
					continue
				}
				fmt.Fprintf(os.Stderr, "Error loading enhancement: %v\n", err)
				os.Exit(1)
			}
			label := "Committed enhancement"
			if preview {
				label = "Preview enhancement"
			}
			fmt.Printf("\n%s (%s", label, formatTime(record.CreatedAt))
			if record.AppliedAt != nil {
				fmt.Printf(", applied %s", formatTime(*record.AppliedAt))
			}
			fmt.Printf("):\n%s\n", record.EnhancedContent)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
