package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/types"
)

var recsCmd = &cobra.Command{
	Use:   "recs",
	Short: "List recommendations",
	Run: func(cmd *cobra.Command, args []string) {
		statusFlag, _ := cmd.Flags().GetString("status")
		validationID, _ := cmd.Flags().GetString("validation")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := types.RecommendationFilter{Limit: limit}
		if statusFlag != "" {
			status := types.RecommendationStatus(statusFlag)
			if !status.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: unknown status %q\n", statusFlag)
				os.Exit(1)
			}
			filter.Status = &status
		}
		if validationID != "" {
			filter.ValidationID = &validationID
		}

		recs, err := store.ListRecommendations(cmd.Context(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(recs) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No recommendations"))
			return
		}

		for _, rec := range recs {
			fmt.Printf("%s  %s  %s\n", rec.ID[:8], statusBadge(rec.Status), rec.Title)
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("          %s\n", gray("created "+formatTime(rec.CreatedAt)+"  validation "+rec.ValidationID[:8]))
		}
	},
}

func init() {
	recsCmd.Flags().StringP("status", "s", "", "Filter by status (proposed, approved, rejected, enhanced, applied)")
	recsCmd.Flags().String("validation", "", "Filter by validation ID")
	recsCmd.Flags().IntP("limit", "n", 50, "Maximum number of recommendations")
	rootCmd.AddCommand(recsCmd)
}

func statusBadge(s types.RecommendationStatus) string {
	switch s {
	case types.RecProposed:
		return color.New(color.FgCyan).Sprintf("%-8s", s)
	case types.RecApproved:
		return color.New(color.FgBlue).Sprintf("%-8s", s)
	case types.RecRejected:
		return color.New(color.FgRed).Sprintf("%-8s", s)
	case types.RecEnhanced:
		return color.New(color.FgYellow).Sprintf("%-8s", s)
	case types.RecApplied:
		return color.New(color.FgGreen).Sprintf("%-8s", s)
	default:
		return fmt.Sprintf("%-8s", s)
	}
}
