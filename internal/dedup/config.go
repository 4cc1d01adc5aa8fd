package dedup

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the deduplication engine.
//
// The fuzzy-match thresholds are deliberately configurable: no single
// tolerance is right for every mix of sources, and clock skew between feeds
// varies. The defaults are conservative.
type Config struct {
	// DateTolerance is the maximum distance between two events' occurrence
	// dates for the fuzzy pass to consider them the same real-world event.
	// Default: 24h (clock-skewed feeds commonly disagree by a calendar day)
	DateTolerance time.Duration

	// NormalizeRegistrations enables registration canonicalization before
	// fuzzy comparison (uppercase, strip non-alphanumerics), so "n123ab" and
	// "N-123AB" compare equal.
	// Default: true
	NormalizeRegistrations bool

	// MinRegistrationLength is the minimum canonical registration length the
	// fuzzy pass will match on. Very short strings are too ambiguous to
	// merge across sources.
	// Default: 2
	MinRegistrationLength int
}

// DefaultConfig returns the default deduplication configuration.
func DefaultConfig() Config {
	return Config{
		DateTolerance:          24 * time.Hour,
		NormalizeRegistrations: true,
		MinRegistrationLength:  2,
	}
}

// Validate checks if the configuration has valid values.
func (c Config) Validate() error {
	if c.DateTolerance < 0 {
		return fmt.Errorf("date_tolerance cannot be negative (got %v)", c.DateTolerance)
	}
	if c.DateTolerance > 7*24*time.Hour {
		return fmt.Errorf("date_tolerance too large (got %v, max 7 days)", c.DateTolerance)
	}
	if c.MinRegistrationLength < 0 {
		return fmt.Errorf("min_registration_length cannot be negative (got %d)", c.MinRegistrationLength)
	}
	if c.MinRegistrationLength > 10 {
		return fmt.Errorf("min_registration_length too large (got %d, max 10)", c.MinRegistrationLength)
	}
	return nil
}

// String returns a human-readable representation of the config.
func (c Config) String() string {
	return fmt.Sprintf("Config{DateTolerance: %v, NormalizeReg: %t, MinRegLen: %d}",
		c.DateTolerance, c.NormalizeRegistrations, c.MinRegistrationLength)
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults.
//
// Environment variables:
//   - AVSENTRY_DEDUP_DATE_TOLERANCE_HOURS: fuzzy date window in hours (default: 24)
//   - AVSENTRY_DEDUP_NORMALIZE_REG: canonicalize registrations (default: true)
//   - AVSENTRY_DEDUP_MIN_REG_LENGTH: minimum canonical registration length (default: 2)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvDuration("AVSENTRY_DEDUP_DATE_TOLERANCE_HOURS", &cfg.DateTolerance, time.Hour); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("AVSENTRY_DEDUP_NORMALIZE_REG", &cfg.NormalizeRegistrations); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("AVSENTRY_DEDUP_MIN_REG_LENGTH", &cfg.MinRegistrationLength); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
