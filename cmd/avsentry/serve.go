package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avsentry/avsentry/internal/ingest"
	"github.com/avsentry/avsentry/internal/scheduler"
)

// lastRunConfigKey is where the most recent run's status is persisted.
const lastRunConfigKey = "last_run"

// orchestratorRunner adapts the ingestion orchestrator to the scheduler.
type orchestratorRunner struct {
	orchestrator *ingest.Orchestrator
}

func (r *orchestratorRunner) RunOnce(ctx context.Context) (scheduler.RunSummary, error) {
	result, err := r.orchestrator.RunRecentIngest(ctx, 0)
	if err != nil {
		return scheduler.RunSummary{}, err
	}
	return scheduler.RunSummary{
		Inserted: result.Inserted,
		Updated:  result.Updated,
		Failures: len(result.Failures),
	}, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion scheduler as a daemon",
	Long: `Start the scheduler and run ingestion passes on the configured
interval until interrupted. The first pass runs immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orchestrator, err := buildOrchestrator()
		if err != nil {
			return err
		}
		interval, err := cfg.IngestInterval()
		if err != nil {
			return err
		}

		sched, err := scheduler.New(scheduler.Config{
			Runner:   &orchestratorRunner{orchestrator: orchestrator},
			Interval: interval,
			Recorder: recordLastRun,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := sched.Start(ctx); err != nil {
			return err
		}

		// Eager first pass so a fresh install has data before the first tick.
		if _, err := sched.TriggerNow(ctx); err != nil {
			log.Printf("initial run failed to start: %v", err)
		}

		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

// recordLastRun persists the finished run's status in the config table.
func recordLastRun(ctx context.Context, status scheduler.RunStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		log.Printf("failed to marshal run status: %v", err)
		return
	}
	if err := store.SetConfig(ctx, lastRunConfigKey, string(data)); err != nil {
		log.Printf("failed to persist run status: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
