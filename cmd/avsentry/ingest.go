package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestWindowDays int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass and exit",
	Long: `Fetch recent reports from every configured source, normalize and
deduplicate them, and reconcile the result against the local database.

Example:
  avsentry ingest                # default lookback window
  avsentry ingest --window 7     # only the last 7 days`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orchestrator, err := buildOrchestrator()
		if err != nil {
			return err
		}

		result, err := orchestrator.RunRecentIngest(cmd.Context(), ingestWindowDays)
		if err != nil {
			return fmt.Errorf("ingestion run failed: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Ingestion Run ==="))
		for name, count := range result.PerSource {
			fmt.Printf("  %-10s %d record(s)\n", name, count)
		}
		fmt.Println()
		fmt.Printf("  Normalized: %d\n", result.TotalNormalized)
		fmt.Printf("  Inserted:   %s\n", green(fmt.Sprintf("%d", result.Inserted)))
		fmt.Printf("  Updated:    %s\n", yellow(fmt.Sprintf("%d", result.Updated)))

		if len(result.Failures) > 0 {
			fmt.Printf("  Failed:     %s\n", red(fmt.Sprintf("%d", len(result.Failures))))
			for _, f := range result.Failures {
				fmt.Fprintf(os.Stderr, "    %s\n", f)
			}
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestWindowDays, "window", 0, "lookback window in days (0 uses the configured default)")
	rootCmd.AddCommand(ingestCmd)
}
