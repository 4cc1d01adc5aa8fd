// Package sqlite implements event storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/avsentry/avsentry/internal/types"
)

// SQLiteStore implements the storage interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dateKey is the canonical stored form of an event date.
func dateKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FindExisting returns the id of the event stored under (date, registration),
// or "" when none exists.
func (s *SQLiteStore) FindExisting(ctx context.Context, date time.Time, registration string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM events WHERE date_z = ? AND registration = ?`,
		dateKey(date), registration,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query existing event: %w", err)
	}
	return id, nil
}

// Upsert inserts the event, or updates the stored row's fields when they
// differ from the incoming ones. An update that changes nothing reports
// Changed=false and leaves updated_at untouched.
func (s *SQLiteStore) Upsert(ctx context.Context, ev *types.NormalizedEvent) (types.UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getEventByKey(ctx, tx, dateKey(ev.Date), ev.Registration)
	if err != nil {
		return types.UpsertResult{}, err
	}

	var result types.UpsertResult
	if existing == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (
				id, date_z, registration, aircraft_type, operator, category,
				airport_icao, airport_iata, country, region, lat, lon,
				fatalities, injuries, summary, narrative, status,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, dateKey(ev.Date), ev.Registration, ev.AircraftType, ev.Operator,
			string(ev.Category), ev.AirportICAO, ev.AirportIATA, ev.Country, ev.Region,
			nullFloat(ev.Lat), nullFloat(ev.Lon), nullInt(ev.Fatalities), nullInt(ev.Injuries),
			ev.Summary, ev.Narrative, ev.Status,
			ev.CreatedAt.UTC().Format(time.RFC3339), ev.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return types.UpsertResult{}, fmt.Errorf("failed to insert event: %w", err)
		}
		result = types.UpsertResult{ID: ev.ID, Inserted: true, Changed: true}
	} else if scalarFieldsEqual(existing, ev) {
		result = types.UpsertResult{ID: existing.ID}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET
				aircraft_type = ?, operator = ?, category = ?,
				airport_icao = ?, airport_iata = ?, country = ?, region = ?,
				lat = ?, lon = ?, fatalities = ?, injuries = ?,
				summary = ?, narrative = ?, status = ?, updated_at = ?
			WHERE id = ?`,
			ev.AircraftType, ev.Operator, string(ev.Category),
			ev.AirportICAO, ev.AirportIATA, ev.Country, ev.Region,
			nullFloat(ev.Lat), nullFloat(ev.Lon), nullInt(ev.Fatalities), nullInt(ev.Injuries),
			ev.Summary, ev.Narrative, ev.Status, ev.UpdatedAt.UTC().Format(time.RFC3339),
			existing.ID,
		)
		if err != nil {
			return types.UpsertResult{}, fmt.Errorf("failed to update event: %w", err)
		}
		result = types.UpsertResult{ID: existing.ID, Changed: true}
	}

	if err := tx.Commit(); err != nil {
		return types.UpsertResult{}, fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

// AppendSource adds one attribution to an event. Re-appending the same
// attribution is a no-op.
func (s *SQLiteStore) AppendSource(ctx context.Context, eventID string, attr types.SourceAttribution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO event_sources (event_id, source_name, url, fetched_at, checksum)
		VALUES (?, ?, ?, ?, ?)`,
		eventID, attr.SourceName, attr.URL, attr.FetchedAt.UTC().Format(time.RFC3339), attr.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to append source: %w", err)
	}
	return nil
}

// GetEvent retrieves one event with its attributions.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*types.NormalizedEvent, error) {
	row := s.db.QueryRowContext(ctx, selectEvent+` WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if err := s.loadSources(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ListRecent returns events in descending date order.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*types.NormalizedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectEvent+` ORDER BY date_z DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*types.NormalizedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	for _, ev := range events {
		if err := s.loadSources(ctx, ev); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// GetConfig returns the stored value for key, or "" when unset.
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a config value, replacing any previous one.
func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

const selectEvent = `
	SELECT id, date_z, registration, aircraft_type, operator, category,
	       airport_icao, airport_iata, country, region, lat, lon,
	       fatalities, injuries, summary, narrative, status,
	       created_at, updated_at
	FROM events`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*types.NormalizedEvent, error) {
	var (
		ev                      types.NormalizedEvent
		dateZ, created, updated string
		category                string
		lat, lon                sql.NullFloat64
		fatalities, injuries    sql.NullInt64
	)
	err := row.Scan(
		&ev.ID, &dateZ, &ev.Registration, &ev.AircraftType, &ev.Operator, &category,
		&ev.AirportICAO, &ev.AirportIATA, &ev.Country, &ev.Region, &lat, &lon,
		&fatalities, &injuries, &ev.Summary, &ev.Narrative, &ev.Status,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	ev.Category = types.Category(category)
	if ev.Date, err = time.Parse(time.RFC3339, dateZ); err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", dateZ, err)
	}
	if ev.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("invalid stored created_at %q: %w", created, err)
	}
	if ev.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("invalid stored updated_at %q: %w", updated, err)
	}
	if lat.Valid {
		v := lat.Float64
		ev.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		ev.Lon = &v
	}
	if fatalities.Valid {
		v := int(fatalities.Int64)
		ev.Fatalities = &v
	}
	if injuries.Valid {
		v := int(injuries.Int64)
		ev.Injuries = &v
	}
	return &ev, nil
}

func (s *SQLiteStore) loadSources(ctx context.Context, ev *types.NormalizedEvent) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_name, url, fetched_at, checksum
		FROM event_sources WHERE event_id = ? ORDER BY id`, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attr    types.SourceAttribution
			fetched string
		)
		if err := rows.Scan(&attr.SourceName, &attr.URL, &fetched, &attr.Checksum); err != nil {
			return fmt.Errorf("failed to scan source: %w", err)
		}
		if attr.FetchedAt, err = time.Parse(time.RFC3339, fetched); err != nil {
			return fmt.Errorf("invalid stored fetched_at %q: %w", fetched, err)
		}
		ev.Sources = append(ev.Sources, attr)
	}
	return rows.Err()
}

func getEventByKey(ctx context.Context, tx *sql.Tx, dateZ, registration string) (*types.NormalizedEvent, error) {
	row := tx.QueryRowContext(ctx, selectEvent+` WHERE date_z = ? AND registration = ?`, dateZ, registration)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event by key: %w", err)
	}
	return ev, nil
}

// scalarFieldsEqual reports whether an incoming event carries the same data
// as the stored one. Provenance and timestamps are excluded: attributions
// accumulate separately and updated_at only moves on a real change.
func scalarFieldsEqual(stored, incoming *types.NormalizedEvent) bool {
	return stored.AircraftType == incoming.AircraftType &&
		stored.Operator == incoming.Operator &&
		stored.Category == incoming.Category &&
		stored.AirportICAO == incoming.AirportICAO &&
		stored.AirportIATA == incoming.AirportIATA &&
		stored.Country == incoming.Country &&
		stored.Region == incoming.Region &&
		floatPtrEqual(stored.Lat, incoming.Lat) &&
		floatPtrEqual(stored.Lon, incoming.Lon) &&
		intPtrEqual(stored.Fatalities, incoming.Fatalities) &&
		intPtrEqual(stored.Injuries, incoming.Injuries) &&
		stored.Summary == incoming.Summary &&
		stored.Narrative == incoming.Narrative &&
		stored.Status == incoming.Status
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
