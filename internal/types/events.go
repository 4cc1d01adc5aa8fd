package types

import (
	"fmt"
	"time"
)

// Category classifies the kind of flight operation involved in an occurrence.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryCommercial Category = "commercial"
	CategoryUnknown    Category = "unknown"
)

// RegistrationSentinel prefixes the placeholder registration assigned to
// records whose source yielded none. Sentinel registrations are real dedup
// keys but are never fuzzy-matched.
const RegistrationSentinel = "UNREG"

// IsValid checks if the category value is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryCommercial, CategoryUnknown:
		return true
	}
	return false
}

// RawEvent is one source-specific record as emitted by an adapter.
// It is loosely typed and ephemeral: produced by a single fetch, consumed
// immediately by the normalizer, never persisted as-is.
type RawEvent struct {
	Source       string    `json:"source"`
	SourceID     string    `json:"source_id"`
	URL          string    `json:"url,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Date         time.Time `json:"date_z"`
	Registration string    `json:"registration,omitempty"`
	AircraftType string    `json:"aircraft_type,omitempty"`
	Operator     string    `json:"operator,omitempty"`
	AirportICAO  string    `json:"airport_icao,omitempty"`
	AirportIATA  string    `json:"airport_iata,omitempty"`
	Country      string    `json:"country,omitempty"`
	Region       string    `json:"region,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	Fatalities   *int      `json:"fatalities,omitempty"`
	Injuries     *int      `json:"injuries,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Narrative    string    `json:"narrative,omitempty"`
	Status       string    `json:"status,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
}

// SourceAttribution records one feed's contribution to a canonical event.
// Attributions accumulate in insertion order as different feeds report the
// same occurrence; the order carries no meaning beyond provenance display.
type SourceAttribution struct {
	SourceName string    `json:"source_name"`
	URL        string    `json:"url,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
	Checksum   string    `json:"checksum,omitempty"`
}

// NormalizedEvent is the canonical, system-wide representation of one
// accident/incident occurrence.
type NormalizedEvent struct {
	ID           string              `json:"id"`
	Date         time.Time           `json:"date_z"`
	Registration string              `json:"registration"`
	AircraftType string              `json:"aircraft_type,omitempty"`
	Operator     string              `json:"operator,omitempty"`
	Category     Category            `json:"category"`
	AirportICAO  string              `json:"airport_icao,omitempty"`
	AirportIATA  string              `json:"airport_iata,omitempty"`
	Country      string              `json:"country,omitempty"`
	Region       string              `json:"region,omitempty"`
	Lat          *float64            `json:"lat,omitempty"`
	Lon          *float64            `json:"lon,omitempty"`
	Fatalities   *int                `json:"fatalities,omitempty"`
	Injuries     *int                `json:"injuries,omitempty"`
	Summary      string              `json:"summary,omitempty"`
	Narrative    string              `json:"narrative,omitempty"`
	Status       string              `json:"status,omitempty"`
	Sources      []SourceAttribution `json:"sources"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Validate checks if the event has valid field values
func (e *NormalizedEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date_z is required")
	}
	if e.Registration == "" {
		return fmt.Errorf("registration is required")
	}
	if !e.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", e.Category)
	}
	if len(e.Sources) == 0 {
		return fmt.Errorf("sources must not be empty")
	}
	if e.Fatalities != nil && *e.Fatalities < 0 {
		return fmt.Errorf("fatalities cannot be negative")
	}
	if e.Injuries != nil && *e.Injuries < 0 {
		return fmt.Errorf("injuries cannot be negative")
	}
	return nil
}

// DedupKey returns the literal (dateZ, registration) pair used to identify
// candidate duplicate records. Unique per ingestion batch, not across the
// whole corpus.
func (e *NormalizedEvent) DedupKey() string {
	return e.Date.UTC().Format(time.RFC3339) + "::" + e.Registration
}

// UpsertResult reports what a store did with one reconciled event.
type UpsertResult struct {
	// ID is the persisted event's identifier
	ID string
	// Inserted is true when the (dateZ, registration) key was new to the store
	Inserted bool
	// Changed is true when an existing row's scalar fields actually differed
	Changed bool
}
