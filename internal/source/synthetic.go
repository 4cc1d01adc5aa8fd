package source

import (
	"context"
	"time"

	"github.com/avsentry/avsentry/internal/types"
)

// SyntheticAdapter emits a small hard-coded sample set so downstream demos
// stay non-empty when every real feed is unreachable and fixtures are stale.
// It is a development convenience only: construction is gated on
// Options.AllowOffline, so it can never be wired into a production deployment.
type SyntheticAdapter struct{}

// NewSynthetic creates the synthetic sample adapter, or nil when offline data
// is not permitted.
func NewSynthetic(opts Options) *SyntheticAdapter {
	if !opts.AllowOffline {
		return nil
	}
	return &SyntheticAdapter{}
}

func (a *SyntheticAdapter) Name() string { return "synthetic" }

// FetchRecent returns the sample set, dated inside the requested window so
// the retention filter never removes it.
func (a *SyntheticAdapter) FetchRecent(ctx context.Context, windowDays int) []types.RawEvent {
	now := time.Now().UTC()
	fat := 0
	inj := 2
	return []types.RawEvent{
		{
			Source:       a.Name(),
			SourceID:     "sample-1",
			FetchedAt:    now,
			Date:         now.AddDate(0, 0, -3).Truncate(24 * time.Hour),
			Registration: "N123AB",
			AircraftType: "B738",
			Operator:     "Sample Airlines",
			AirportICAO:  "KDEN",
			Summary:      "Engine failure on approach, safe landing.",
			Fatalities:   &fat,
		},
		{
			Source:       a.Name(),
			SourceID:     "sample-2",
			FetchedAt:    now,
			Date:         now.AddDate(0, 0, -7).Truncate(24 * time.Hour),
			Registration: "N9876F",
			AircraftType: "C172",
			AirportICAO:  "KPAO",
			Summary:      "Gear collapse on landing roll.",
			Injuries:     &inj,
		},
	}
}
