// Package ingest drives one ingestion run end to end: adapter fan-out,
// normalization, retention filtering, deduplication, and reconciliation
// against the persisted store.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avsentry/avsentry/internal/dedup"
	"github.com/avsentry/avsentry/internal/normalize"
	"github.com/avsentry/avsentry/internal/source"
	"github.com/avsentry/avsentry/internal/types"
)

// retentionCutoff is the hard historical floor: events before it are
// discarded after normalization, reflecting the system's stated scope.
var retentionCutoff = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Store is the persistence collaborator the orchestrator reconciles against.
// The store enforces (dateZ, registration) uniqueness at the storage layer as
// a safety net beneath the orchestrator's own check.
type Store interface {
	// FindExisting returns the persisted id for a dedup key, or "" when the
	// key is new
	FindExisting(ctx context.Context, date time.Time, registration string) (string, error)
	// Upsert inserts the event or updates the existing row's scalar fields
	Upsert(ctx context.Context, ev *types.NormalizedEvent) (types.UpsertResult, error)
	// AppendSource adds one attribution to a persisted event
	AppendSource(ctx context.Context, id string, attr types.SourceAttribution) error
}

// EventFailure records one event the store rejected during a run.
type EventFailure struct {
	Registration string
	Date         time.Time
	Err          error
}

func (f EventFailure) String() string {
	return fmt.Sprintf("%s/%s: %v", f.Date.Format("2006-01-02"), f.Registration, f.Err)
}

// Result aggregates the outcome of one ingestion run.
type Result struct {
	// Inserted is the number of events new to the store
	Inserted int
	// Updated is the number of existing events whose fields actually changed
	Updated int
	// TotalNormalized counts every normalization output, including events
	// the retention filter later discarded
	TotalNormalized int
	// PerSource maps adapter name to raw record count
	PerSource map[string]int
	// Failures lists events the store rejected; the run is still a partial
	// success when non-empty
	Failures []EventFailure
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	adapters   []source.Adapter
	normalizer *normalize.Normalizer
	engine     *dedup.Engine
	store      Store
	windowDays int
}

// Config holds orchestrator dependencies.
type Config struct {
	Adapters   []source.Adapter
	Normalizer *normalize.Normalizer
	Engine     *dedup.Engine
	Store      Store
	// WindowDays is the default lookback window; zero means
	// source.DefaultWindowDays
	WindowDays int
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter is required")
	}
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("dedup engine is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = source.DefaultWindowDays
	}
	return &Orchestrator{
		adapters:   cfg.Adapters,
		normalizer: cfg.Normalizer,
		engine:     cfg.Engine,
		store:      cfg.Store,
		windowDays: windowDays,
	}, nil
}

// RunRecentIngest executes one full ingestion run. A per-event persistence
// failure is collected and does not abort the remaining batch; only a failure
// of the run as a whole (store unreachable during fan-in, context canceled)
// returns an error.
func (o *Orchestrator) RunRecentIngest(ctx context.Context, windowDays int) (*Result, error) {
	if windowDays <= 0 {
		windowDays = o.windowDays
	}

	raw, perSource, err := o.fetchAll(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	result := &Result{PerSource: perSource}

	// Normalize, then apply the retention filter. TotalNormalized counts
	// pre-filter output.
	events := make([]types.NormalizedEvent, 0, len(raw))
	for _, r := range raw {
		ev := o.normalizer.Normalize(r)
		result.TotalNormalized++
		if ev.Date.Before(retentionCutoff) {
			continue
		}
		events = append(events, ev)
	}

	events = o.engine.Run(events)

	for i := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.reconcile(ctx, &events[i], result)
	}

	if len(result.Failures) > 0 {
		log.Printf("ingest: %d event(s) failed to persist", len(result.Failures))
	}
	return result, nil
}

// fetchAll fans out to every adapter concurrently. Adapters never fail for
// source-side reasons, so the only error out of here is context cancellation.
func (o *Orchestrator) fetchAll(ctx context.Context, windowDays int) ([]types.RawEvent, map[string]int, error) {
	batches := make([][]types.RawEvent, len(o.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range o.adapters {
		i, a := i, a
		g.Go(func() error {
			batches[i] = a.FetchRecent(gctx, windowDays)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("adapter fan-out canceled: %w", err)
	}

	perSource := make(map[string]int, len(o.adapters))
	var all []types.RawEvent
	for i, a := range o.adapters {
		perSource[a.Name()] = len(batches[i])
		all = append(all, batches[i]...)
	}
	return all, perSource, nil
}

// reconcile upserts one surviving event and appends its attributions.
// Failures are collected on the result, never propagated.
func (o *Orchestrator) reconcile(ctx context.Context, ev *types.NormalizedEvent, result *Result) {
	existingID, err := o.store.FindExisting(ctx, ev.Date, ev.Registration)
	if err != nil {
		result.Failures = append(result.Failures, EventFailure{
			Registration: ev.Registration, Date: ev.Date,
			Err: fmt.Errorf("failed to query existing record: %w", err),
		})
		return
	}

	up, err := o.store.Upsert(ctx, ev)
	if err != nil {
		result.Failures = append(result.Failures, EventFailure{
			Registration: ev.Registration, Date: ev.Date,
			Err: fmt.Errorf("failed to upsert: %w", err),
		})
		return
	}

	for _, attr := range ev.Sources {
		if err := o.store.AppendSource(ctx, up.ID, attr); err != nil {
			result.Failures = append(result.Failures, EventFailure{
				Registration: ev.Registration, Date: ev.Date,
				Err: fmt.Errorf("failed to append attribution from %s: %w", attr.SourceName, err),
			})
			return
		}
	}

	switch {
	case existingID == "" && up.Inserted:
		result.Inserted++
	case up.Changed:
		result.Updated++
	}
}
