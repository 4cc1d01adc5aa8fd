// Package postgres implements event storage on PostgreSQL with connection
// pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avsentry/avsentry/internal/types"
)

// PostgresStore implements the storage interface using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL storage backend with connection pooling
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func dateKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FindExisting returns the id of the event stored under (date, registration),
// or "" when none exists.
func (s *PostgresStore) FindExisting(ctx context.Context, date time.Time, registration string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM events WHERE date_z = $1 AND registration = $2`,
		dateKey(date), registration,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query existing event: %w", err)
	}
	return id, nil
}

// Upsert inserts the event, or updates the stored row's fields when they
// differ from the incoming ones.
func (s *PostgresStore) Upsert(ctx context.Context, ev *types.NormalizedEvent) (types.UpsertResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := getEventByKey(ctx, tx, dateKey(ev.Date), ev.Registration)
	if err != nil {
		return types.UpsertResult{}, err
	}

	var result types.UpsertResult
	if existing == nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO events (
				id, date_z, registration, aircraft_type, operator, category,
				airport_icao, airport_iata, country, region, lat, lon,
				fatalities, injuries, summary, narrative, status,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			          $13, $14, $15, $16, $17, $18, $19)`,
			ev.ID, dateKey(ev.Date), ev.Registration, ev.AircraftType, ev.Operator,
			string(ev.Category), ev.AirportICAO, ev.AirportIATA, ev.Country, ev.Region,
			ev.Lat, ev.Lon, ev.Fatalities, ev.Injuries,
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
		_, err = tx.Exec(ctx, `
			UPDATE events SET
				aircraft_type = $1, operator = $2, category = $3,
				airport_icao = $4, airport_iata = $5, country = $6, region = $7,
				lat = $8, lon = $9, fatalities = $10, injuries = $11,
				summary = $12, narrative = $13, status = $14, updated_at = $15
			WHERE id = $16`,
			ev.AircraftType, ev.Operator, string(ev.Category),
			ev.AirportICAO, ev.AirportIATA, ev.Country, ev.Region,
			ev.Lat, ev.Lon, ev.Fatalities, ev.Injuries,
			ev.Summary, ev.Narrative, ev.Status, ev.UpdatedAt.UTC().Format(time.RFC3339),
			existing.ID,
		)
		if err != nil {
			return types.UpsertResult{}, fmt.Errorf("failed to update event: %w", err)
		}
		result = types.UpsertResult{ID: existing.ID, Changed: true}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.UpsertResult{}, fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

// AppendSource adds one attribution to an event. Re-appending the same
// attribution is a no-op.
func (s *PostgresStore) AppendSource(ctx context.Context, eventID string, attr types.SourceAttribution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_sources (event_id, source_name, url, fetched_at, checksum)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, source_name, url, checksum) DO NOTHING`,
		eventID, attr.SourceName, attr.URL, attr.FetchedAt.UTC().Format(time.RFC3339), attr.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to append source: %w", err)
	}
	return nil
}

// GetEvent retrieves one event with its attributions.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*types.NormalizedEvent, error) {
	row := s.pool.QueryRow(ctx, selectEvent+` WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*types.NormalizedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectEvent+` ORDER BY date_z DESC LIMIT $1`, limit)
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
func (s *PostgresStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a config value, replacing any previous one.
func (s *PostgresStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
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
	)
	err := row.Scan(
		&ev.ID, &dateZ, &ev.Registration, &ev.AircraftType, &ev.Operator, &category,
		&ev.AirportICAO, &ev.AirportIATA, &ev.Country, &ev.Region, &ev.Lat, &ev.Lon,
		&ev.Fatalities, &ev.Injuries, &ev.Summary, &ev.Narrative, &ev.Status,
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
	return &ev, nil
}

func (s *PostgresStore) loadSources(ctx context.Context, ev *types.NormalizedEvent) error {
	rows, err := s.pool.Query(ctx, `
		SELECT source_name, url, fetched_at, checksum
		FROM event_sources WHERE event_id = $1 ORDER BY id`, ev.ID)
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

func getEventByKey(ctx context.Context, tx pgx.Tx, dateZ, registration string) (*types.NormalizedEvent, error) {
	row := tx.QueryRow(ctx, selectEvent+` WHERE date_z = $1 AND registration = $2`, dateZ, registration)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event by key: %w", err)
	}
	return ev, nil
}

// scalarFieldsEqual reports whether an incoming event carries the same data
// as the stored one. Provenance and timestamps are excluded.
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
