package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbcv/tbcv/internal/broadcast"
	"github.com/tbcv/tbcv/internal/types"
)

var checkCmd = &cobra.Command{
	Use:   "check [path...]",
	Short: "Validate a batch of files",
	Long: `Validate every given file, walking directories recursively. Prints a
per-file verdict and a summary, and exits non-zero when any file fails.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		derive, _ := cmd.Flags().GetBool("recommend")
		live, _ := cmd.Flags().GetBool("events")
		ctx := cmd.Context()

		if live {
			sub := bc.Subscribe()
			done := make(chan struct{})
			go streamEvents(sub, done)
			defer func() {
				sub.Cancel()
				<-done
			}()
		}

		var files []string
		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !info.IsDir() {
				files = append(files, arg)
				continue
			}
			err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error walking %s: %v\n", arg, err)
				os.Exit(1)
			}
		}

		passed, failed, errored, proposed := 0, 0, 0, 0
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
				os.Exit(1)
			}
			artifact := types.NewArtifact(types.DetectKind(path), path, string(data))
			result, err := dispatch.Dispatch(ctx, artifact)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error validating %s: %v\n", path, err)
				os.Exit(1)
			}

			printResult(result, path)
			switch result.Status {
			case types.ValidationPassed:
				passed++
			case types.ValidationFailed:
				failed++
			default:
				errored++
			}

			if derive {
				recs, err := deriver.FromValidation(ctx, result)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error deriving recommendations: %v\n", err)
					os.Exit(1)
				}
				proposed += len(recs)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s %d passed, %s %d failed, %s %d errored\n",
			green("✓"), passed, red("✗"), failed, yellow("⚠"), errored)
		if derive {
			fmt.Printf("%d recommendation(s) proposed\n", proposed)
		}

		if failed > 0 || errored > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	checkCmd.Flags().BoolP("recommend", "r", false, "Derive recommendations from the findings")
	checkCmd.Flags().Bool("events", false, "Stream pipeline status events while checking")
	rootCmd.AddCommand(checkCmd)
}

// streamEvents prints broadcaster events until the subscription closes.
func streamEvents(sub *broadcast.Subscription, done chan<- struct{}) {
	defer close(done)
	gray := color.New(color.FgHiBlack).SprintFunc()
	for ev := range sub.Events() {
		if ev.Type == broadcast.EventHeartbeat {
			continue
		}
		fmt.Printf("%s %s\n", gray(ev.Timestamp.Format("15:04:05")+" ["+string(ev.Type)+"]"), gray(ev.Message))
	}
}
