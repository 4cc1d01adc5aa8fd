// Package source contains the adapters that retrieve raw occurrence records
// from external accident/incident feeds.
//
// Every adapter follows the same three-tier fallback chain: live fetch, then
// a bundled offline fixture parsed by the identical parser, then an empty
// result. Transient source unavailability is recovered inside the adapter and
// never surfaces to the caller.
package source

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/avsentry/avsentry/internal/types"
)

// DefaultWindowDays is the lookback window applied when a caller passes zero.
const DefaultWindowDays = 40

// maxPages caps any paginated live walk, independent of the windowed stop.
const maxPages = 20

// Adapter fetches a bounded recent window of raw records from one feed.
// FetchRecent never fails for reasons of source unavailability; a degraded
// adapter contributes fewer (possibly zero) records instead.
type Adapter interface {
	Name() string
	FetchRecent(ctx context.Context, windowDays int) []types.RawEvent
}

// Options holds settings shared by all adapters.
type Options struct {
	// Timeout bounds each adapter's live-fetch tier
	Timeout time.Duration
	// UserAgent is sent on live requests
	UserAgent string
	// AllowOffline permits the fixture and synthetic tiers. Must be false in
	// production deployments so stale snapshot data can never masquerade as a
	// live feed.
	AllowOffline bool
	// Limiter throttles paginated live fetches across all adapters. Nil
	// disables throttling.
	Limiter *rate.Limiter
}

// DefaultOptions returns adapter options suitable for development use.
func DefaultOptions() Options {
	return Options{
		Timeout:      20 * time.Second,
		UserAgent:    "avsentry/1.0",
		AllowOffline: true,
		Limiter:      rate.NewLimiter(rate.Limit(4), 4),
	}
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 20 * time.Second
	}
	return o.Timeout
}

// wait blocks on the shared limiter, if one is configured.
func (o Options) wait(ctx context.Context) error {
	if o.Limiter == nil {
		return nil
	}
	return o.Limiter.Wait(ctx)
}

// tier is one rung of an adapter's fallback chain.
type tier struct {
	name  string
	fetch func(ctx context.Context, windowDays int) ([]types.RawEvent, error)
}

// runTiers evaluates tiers in order until one yields a non-empty result.
// Tier failures are logged and absorbed; an exhausted chain returns an empty
// slice, never an error.
func runTiers(ctx context.Context, adapter string, windowDays int, tiers []tier) []types.RawEvent {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	for _, t := range tiers {
		records, err := t.fetch(ctx, windowDays)
		if err != nil {
			log.Printf("source %s: %s tier failed: %v", adapter, t.name, err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		return records
	}
	return nil
}

// cutoff returns the oldest occurrence date the window admits.
func cutoff(windowDays int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -windowDays)
}
