package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/types"
)

var approveCmd = &cobra.Command{
	Use:   "approve [rec-id]",
	Short: "Approve a proposed recommendation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDecide(cmd, args[0], types.DecisionApprove)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject [rec-id]",
	Short: "Reject a proposed recommendation",
	Long: `Reject a proposed recommendation. Rejection is terminal: a rejected
recommendation can never re-enter the workflow.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDecide(cmd, args[0], types.DecisionReject)
	},
}

func runDecide(cmd *cobra.Command, recID string, decision types.Decision) {
	actor, _ := cmd.Flags().GetString("by")
	if actor == "" {
		if u, err := user.Current(); err == nil {
			actor = u.Username
		}
	}

	rec, err := engine.Decide(cmd.Context(), recID, decision, actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	icon := color.New(color.FgGreen).Sprint("✓")
	if decision == types.DecisionReject {
		icon = color.New(color.FgRed).Sprint("✗")
	}
	fmt.Printf("%s %s %s by %s\n", icon, rec.ID[:8], rec.Status, actor)
}

func init() {
	for _, cmd := range []*cobra.Command{approveCmd, rejectCmd} {
		cmd.Flags().String("by", "", "Deciding actor (default: current user)")
		rootCmd.AddCommand(cmd)
	}
}
