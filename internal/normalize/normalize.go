// Package normalize maps raw source records into the canonical event shape.
package normalize

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avsentry/avsentry/internal/airports"
	"github.com/avsentry/avsentry/internal/types"
)

// Resolver looks up airport reference data by ICAO or IATA code. Lookups are
// pure; the ingestion core expects no side effects from the collaborator.
type Resolver interface {
	Resolve(code string) (airports.Airport, bool)
}

// Normalizer converts raw records into normalized events. It is pure and
// total: the only collaborator it touches is the airport resolver, and no
// input can make it fail.
type Normalizer struct {
	resolver Resolver

	// overridable in tests
	now   func() time.Time
	newID func() string
}

// New creates a Normalizer backed by the given airport resolver.
func New(resolver Resolver) *Normalizer {
	return &Normalizer{
		resolver: resolver,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Normalize converts one raw record into a canonical event:
// surrogate id, airport backfill, category classification, provenance, and
// timestamps. Raw-supplied values always take precedence over resolved ones.
func (n *Normalizer) Normalize(raw types.RawEvent) types.NormalizedEvent {
	now := n.now().UTC()

	ev := types.NormalizedEvent{
		ID:           n.newID(),
		Date:         raw.Date.UTC(),
		Registration: raw.Registration,
		AircraftType: raw.AircraftType,
		Operator:     raw.Operator,
		Category:     classifyCategory(raw.Operator),
		AirportICAO:  raw.AirportICAO,
		AirportIATA:  raw.AirportIATA,
		Country:      raw.Country,
		Region:       raw.Region,
		Lat:          raw.Lat,
		Lon:          raw.Lon,
		Fatalities:   raw.Fatalities,
		Injuries:     raw.Injuries,
		Summary:      raw.Summary,
		Narrative:    raw.Narrative,
		Status:       raw.Status,
		Sources: []types.SourceAttribution{{
			SourceName: raw.Source,
			URL:        raw.URL,
			FetchedAt:  raw.FetchedAt,
			Checksum:   raw.Checksum,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if ev.Registration == "" {
		// The source record id keeps sentinels from colliding across feed items
		ev.Registration = types.RegistrationSentinel + "-" + raw.Source + "-" + raw.SourceID
	}

	n.backfillAirport(&ev)
	return ev
}

// backfillAirport fills missing location fields from the airport directory.
// Values already present on the event are never overwritten.
func (n *Normalizer) backfillAirport(ev *types.NormalizedEvent) {
	if n.resolver == nil {
		return
	}
	code := ev.AirportICAO
	if code == "" {
		code = ev.AirportIATA
	}
	if code == "" {
		return
	}
	a, ok := n.resolver.Resolve(code)
	if !ok {
		return
	}

	if ev.AirportICAO == "" {
		ev.AirportICAO = a.ICAO
	}
	if ev.AirportIATA == "" {
		ev.AirportIATA = a.IATA
	}
	if ev.Country == "" {
		ev.Country = a.Country
	}
	if ev.Region == "" {
		ev.Region = a.Region
	}
	if ev.Lat == nil && ev.Lon == nil {
		lat, lon := a.Lat, a.Lon
		ev.Lat = &lat
		ev.Lon = &lon
	}
}

// airline-indicative substrings; a coarse heuristic, not a lookup against a
// registry of certificated operators
var commercialMarkers = []string{"airlines", "airways", "airline"}

func classifyCategory(operator string) types.Category {
	op := strings.ToLower(strings.TrimSpace(operator))
	if op == "" || op == "unknown" {
		return types.CategoryUnknown
	}
	for _, marker := range commercialMarkers {
		if strings.Contains(op, marker) {
			return types.CategoryCommercial
		}
	}
	return types.CategoryGeneral
}
