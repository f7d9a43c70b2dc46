package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/enhance"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [rec-id]",
	Short: "Generate enhanced content for an approved recommendation",
	Long: `Run the rewriter over the content behind an approved recommendation.

With --preview the result is shown and recorded without changing the
recommendation's status; previews may be repeated and each overwrites the
last. Without --preview the enhancement is committed and the recommendation
moves to enhanced.

The rewriter uses the Anthropic API when ANTHROPIC_API_KEY is set, and a
deterministic local rewriter otherwise (or with --local).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recID := args[0]
		preview, _ := cmd.Flags().GetBool("preview")

		record, err := engine.Enhance(cmd.Context(), recID, preview)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		if preview {
			fmt.Printf("%s preview for %s:\n\n%s\n", green("✓"), recID[:8], record.EnhancedContent)
			return
		}
		fmt.Printf("%s %s enhanced\n", green("✓"), recID[:8])
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply [rec-id]",
	Short: "Apply a committed enhancement to the content",
	Long: `Write the committed enhancement back to the artifact's locator and move
the recommendation to applied. Requires a committed (non-preview)
enhancement; applied is terminal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recID := args[0]

		record, err := engine.Apply(cmd.Context(), recID, enhance.FileSink{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s applied (%d bytes written)\n", green("✓"), recID[:8], len(record.EnhancedContent))
	},
}

// forceLocal is bound to --local before PersistentPreRunE builds the engine.
var forceLocal bool

func init() {
	enhanceCmd.Flags().BoolP("preview", "p", false, "Record and show the enhancement without committing it")
	enhanceCmd.Flags().BoolVar(&forceLocal, "local", false, "Force the deterministic local rewriter")
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(applyCmd)
}

// newRewriter selects the rewriter implementation for this process.
func newRewriter() enhance.Rewriter {
	if forceLocal || os.Getenv("ANTHROPIC_API_KEY") == "" {
		return enhance.LocalRewriter{}
	}
	return enhance.NewAnthropicRewriter("", cfg.AnthropicModel)
}
