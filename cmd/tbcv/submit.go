package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Validate a content file",
	Long: `Read a file, dispatch it to all applicable validators and store the
validation result. With --recommend, improvement recommendations are derived
from the findings and proposed for review.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		kindFlag, _ := cmd.Flags().GetString("kind")
		derive, _ := cmd.Flags().GetBool("recommend")

		ctx := cmd.Context()

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		kind := types.DetectKind(path)
		if kindFlag != "" {
			kind = types.ArtifactKind(kindFlag)
			if !kind.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: unknown kind %q\n", kindFlag)
				os.Exit(1)
			}
		}

		artifact := types.NewArtifact(kind, path, string(data))
		result, err := dispatch.Dispatch(ctx, artifact)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printResult(result, path)

		if derive {
			recs, err := deriver.FromValidation(ctx, result)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error deriving recommendations: %v\n", err)
				os.Exit(1)
			}
			cyan := color.New(color.FgCyan).SprintFunc()
			fmt.Printf("\n%s %d recommendation(s) proposed\n", cyan("→"), len(recs))
			for _, rec := range recs {
				fmt.Printf("  %s  %s\n", rec.ID[:8], rec.Title)
			}
		}
	},
}

func init() {
	submitCmd.Flags().StringP("kind", "k", "", "Artifact kind (yaml, markdown, code, html, json, text); default from extension")
	submitCmd.Flags().BoolP("recommend", "r", false, "Derive recommendations from the findings")
	rootCmd.AddCommand(submitCmd)
}

func printResult(result *types.ValidationResult, path string) {
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Println(resultHeadline(result.Status, path))
	fmt.Printf("  validation: %s\n", gray(result.ID))

	for _, f := range result.Findings {
		fmt.Printf("  %s\n", findingLine(f))
	}
}

func resultHeadline(status types.ValidationStatus, path string) string {
	switch status {
	case types.ValidationPassed:
		return fmt.Sprintf("%s %s passed", color.New(color.FgGreen).Sprint("✓"), path)
	case types.ValidationFailed:
		return fmt.Sprintf("%s %s failed", color.New(color.FgRed).Sprint("✗"), path)
	default:
		return fmt.Sprintf("%s %s %s", color.New(color.FgYellow).Sprint("⚠"), path, status)
	}
}

func findingLine(f *types.Finding) string {
	gray := color.New(color.FgHiBlack).SprintFunc()
	suffix := ""
	if f.Infrastructure {
		suffix = gray(" [infra]")
	}
	loc := ""
	if f.Location != "" {
		loc = gray(" (" + f.Location + ")")
	}
	return fmt.Sprintf("%s %s: %s%s%s", severityDot(f.Severity), f.ValidatorKind, f.Message, loc, suffix)
}

func severityDot(s types.Severity) string {
	switch s {
	case types.SeverityError:
		return color.New(color.FgRed).Sprint("●")
	case types.SeverityWarning:
		return color.New(color.FgYellow).Sprint("●")
	default:
		return color.New(color.FgHiBlack).Sprint("●")
	}
}
