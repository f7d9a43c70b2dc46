package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the validation store",
	Long: `Initialize the validation store: create the database, apply the schema
and record the store's schema version. Safe to run more than once.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		// Opening the store already applied the schema; record the version.
		if err := store.SetConfig(ctx, "schema_version", "1"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized validation store\n\n", green("✓"))
		if cfg.Backend == "sqlite" {
			fmt.Printf("  Database: %s\n", cyan(cfg.DBPath))
		} else {
			fmt.Printf("  Backend: %s\n", cyan(cfg.Backend))
		}
		fmt.Println()
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("tbcv submit doc.md --recommend"))
		fmt.Printf("  %s\n", gray("tbcv recs --status proposed"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
