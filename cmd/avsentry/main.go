// avsentry aggregates aviation accident and incident reports from public
// sources into a deduplicated local database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/avsentry/avsentry/internal/airports"
	"github.com/avsentry/avsentry/internal/config"
	"github.com/avsentry/avsentry/internal/dedup"
	"github.com/avsentry/avsentry/internal/ingest"
	"github.com/avsentry/avsentry/internal/normalize"
	"github.com/avsentry/avsentry/internal/source"
	"github.com/avsentry/avsentry/internal/storage"
)

// Shared state wired up by PersistentPreRunE and used by subcommands
var (
	configPath string
	cfg        *config.Config
	store      storage.Store
)

var rootCmd = &cobra.Command{
	Use:   "avsentry",
	Short: "Aviation accident and incident report aggregator",
	Long: `avsentry pulls recent accident and incident reports from NTSB,
The Aviation Herald, and the Aviation Safety Network, normalizes them into a
common schema, merges duplicate reports of the same occurrence, and stores the
result locally.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err = storage.NewStore(cmd.Context(), &storage.Config{
			Driver: cfg.Storage.Driver,
			Path:   cfg.Storage.Path,
			DSN:    cfg.Storage.DSN,
		})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

// buildOrchestrator assembles the ingestion pipeline from the loaded config.
func buildOrchestrator() (*ingest.Orchestrator, error) {
	timeout, err := cfg.SourceTimeout()
	if err != nil {
		return nil, err
	}

	opts := source.Options{
		Timeout:      timeout,
		UserAgent:    cfg.Sources.UserAgent,
		AllowOffline: !cfg.IsProduction(),
	}
	if cfg.Sources.RequestsPerSecond > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.Sources.RequestsPerSecond), 1)
	}

	adapters := []source.Adapter{
		source.NewNTSB(cfg.Sources.NTSBBaseURL, opts),
		source.NewAVHerald(cfg.Sources.AVHeraldFeed, opts),
		source.NewASN(cfg.Sources.ASNBaseURL, opts),
	}
	if synthetic := source.NewSynthetic(opts); synthetic != nil {
		adapters = append(adapters, synthetic)
	}

	dedupCfg, err := dedup.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	return ingest.New(ingest.Config{
		Adapters:   adapters,
		Normalizer: normalize.New(airports.NewDirectory()),
		Engine:     dedup.New(dedupCfg),
		Store:      store,
		WindowDays: cfg.Ingest.WindowDays,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (after %v)\n", err, time.Since(start).Round(time.Millisecond))
		os.Exit(1)
	}
}
