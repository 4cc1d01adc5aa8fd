// Package config loads the application configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// Environment is "production" or "development"
	Environment string `yaml:"environment"`

	Ingest  IngestConfig  `yaml:"ingest"`
	Sources SourcesConfig `yaml:"sources"`
	Storage StorageConfig `yaml:"storage"`
}

// IngestConfig configures the pipeline cadence and lookback window.
type IngestConfig struct {
	// Interval between scheduled runs, e.g. "6h" or "1d"
	Interval string `yaml:"interval"`
	// WindowDays is the lookback window for recent-event fetches
	WindowDays int `yaml:"window_days"`
}

// SourcesConfig configures the upstream adapters.
type SourcesConfig struct {
	// Timeout for a single upstream request, e.g. "30s"
	Timeout string `yaml:"timeout"`
	// UserAgent sent on upstream requests
	UserAgent string `yaml:"user_agent"`
	// RequestsPerSecond caps the upstream request rate; zero disables the cap
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	NTSBBaseURL    string `yaml:"ntsb_base_url"`
	AVHeraldFeed   string `yaml:"avherald_feed"`
	ASNBaseURL     string `yaml:"asn_base_url"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver: "sqlite" (default) or "postgres"
	Driver string `yaml:"driver"`
	// Path is the SQLite database file path
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is given. Omitted YAML
// keys keep these values.
func Default() *Config {
	return &Config{
		Environment: "production",
		Ingest: IngestConfig{
			Interval:   "6h",
			WindowDays: 40,
		},
		Sources: SourcesConfig{
			Timeout:           "30s",
			UserAgent:         "avsentry/1.0",
			RequestsPerSecond: 2,
			NTSBBaseURL:       "https://data.ntsb.gov",
			AVHeraldFeed:      "https://avherald.com/rss",
			ASNBaseURL:        "https://asn.flightsafety.org",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   ".avsentry/avsentry.db",
		},
	}
}

// Load reads configuration from a YAML file, falls back to defaults when the
// path is empty, and applies environment overrides last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays AVSENTRY_* environment variables on the loaded config.
func (c *Config) applyEnv() {
	if v := os.Getenv("AVSENTRY_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("AVSENTRY_INGEST_INTERVAL"); v != "" {
		c.Ingest.Interval = v
	}
	if v := os.Getenv("AVSENTRY_INGEST_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.WindowDays = n
		}
	}
	if v := os.Getenv("AVSENTRY_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("AVSENTRY_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("AVSENTRY_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Environment != "production" && c.Environment != "development" {
		return fmt.Errorf("unknown environment: %q", c.Environment)
	}
	if _, err := c.IngestInterval(); err != nil {
		return fmt.Errorf("invalid ingest interval %q: %w", c.Ingest.Interval, err)
	}
	if c.Ingest.WindowDays <= 0 {
		return fmt.Errorf("ingest window_days must be positive, got %d", c.Ingest.WindowDays)
	}
	if _, err := c.SourceTimeout(); err != nil {
		return fmt.Errorf("invalid source timeout %q: %w", c.Sources.Timeout, err)
	}
	if c.Sources.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	return nil
}

// IsProduction reports whether offline fallback data must stay disabled.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IngestInterval returns the parsed run interval.
func (c *Config) IngestInterval() (time.Duration, error) {
	return parseDuration(c.Ingest.Interval)
}

// SourceTimeout returns the parsed upstream request timeout.
func (c *Config) SourceTimeout() (time.Duration, error) {
	return parseDuration(c.Sources.Timeout)
}

// parseDuration extends time.ParseDuration to support days and weeks.
func parseDuration(s string) (time.Duration, error) {
	// Handle days (e.g., "7d")
	var days int
	if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	// Handle weeks (e.g., "2w")
	var weeks int
	if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}
