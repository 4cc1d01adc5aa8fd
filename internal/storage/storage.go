// Package storage defines the persistence interface for normalized events
// and dispatches to the configured backend.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/avsentry/avsentry/internal/storage/postgres"
	"github.com/avsentry/avsentry/internal/storage/sqlite"
	"github.com/avsentry/avsentry/internal/types"
)

// Store defines the interface for event storage backends
type Store interface {
	// Events
	FindExisting(ctx context.Context, date time.Time, registration string) (string, error)
	Upsert(ctx context.Context, ev *types.NormalizedEvent) (types.UpsertResult, error)
	AppendSource(ctx context.Context, eventID string, attr types.SourceAttribution) error
	GetEvent(ctx context.Context, id string) (*types.NormalizedEvent, error)
	ListRecent(ctx context.Context, limit int) ([]*types.NormalizedEvent, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Driver selects the backend: "sqlite" (default) or "postgres"
	Driver string
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
	// DSN is the PostgreSQL connection string, used when Driver is "postgres"
	DSN string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Driver: "sqlite",
		Path:   ".avsentry/avsentry.db",
	}
}

// NewStore creates a storage backend for the configured driver.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = DefaultConfig().Path
		}
		return sqlite.New(path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
