package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/avsentry/avsentry/internal/scheduler"
)

var statusRecent int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last ingestion run and recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== avsentry Status ==="))

		fmt.Printf("%s\n", yellow("Last Run:"))
		raw, err := store.GetConfig(ctx, lastRunConfigKey)
		if err != nil {
			return fmt.Errorf("failed to read last run: %w", err)
		}
		if raw == "" {
			fmt.Printf("  %s\n", gray("No runs recorded yet"))
		} else {
			var status scheduler.RunStatus
			if err := json.Unmarshal([]byte(raw), &status); err != nil {
				return fmt.Errorf("failed to decode last run: %w", err)
			}

			outcome := green("● success")
			if !status.Success {
				outcome = red(fmt.Sprintf("● failed: %s", status.ErrorMessage))
			}
			fmt.Printf("  %s\n", outcome)
			fmt.Printf("    Started:  %s (%v ago)\n",
				status.Started.Format("2006-01-02 15:04:05"),
				time.Since(status.Started).Round(time.Second))
			fmt.Printf("    Duration: %v\n", status.Finished.Sub(status.Started).Round(time.Millisecond))
			fmt.Printf("    Ingested: %d  Updated: %d  Errors: %d\n",
				status.EventsIngested, status.EventsUpdated, status.Errors)
		}

		fmt.Printf("\n%s\n", yellow("Recent Events:"))
		events, err := store.ListRecent(ctx, statusRecent)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		if len(events) == 0 {
			fmt.Printf("  %s\n", gray("No events stored"))
		}
		for _, ev := range events {
			var names []string
			for _, attr := range ev.Sources {
				names = append(names, attr.SourceName)
			}
			fmt.Printf("  %s  %-8s %-6s %s %s\n",
				ev.Date.Format("2006-01-02"),
				ev.Registration,
				ev.Category,
				ev.Summary,
				gray(fmt.Sprintf("[%s]", strings.Join(names, ","))))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRecent, "recent", 10, "number of recent events to show")
	rootCmd.AddCommand(statusCmd)
}
