package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsentry/avsentry/internal/types"
)

func event(reg string, date, updated time.Time, source string) types.NormalizedEvent {
	return types.NormalizedEvent{
		ID:           "id-" + source + "-" + reg,
		Date:         date,
		Registration: reg,
		Operator:     "op-" + source,
		Category:     types.CategoryGeneral,
		Sources: []types.SourceAttribution{
			{SourceName: source, FetchedAt: updated},
		},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

var (
	day1 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	t1   = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2   = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
)

func TestExactPassMergesIdenticalKeys(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N123AB", day1, t1, "ntsb"),
		event("N123AB", day1, t2, "avherald"),
		event("N555XY", day1, t1, "ntsb"),
	}

	out := e.Dedupe(in)
	require.Len(t, out, 2)

	merged := out[0]
	assert.Equal(t, "N123AB", merged.Registration)
	assert.Len(t, merged.Sources, 2, "sources length must equal the sum of the inputs' source counts")
	assert.Equal(t, "op-avherald", merged.Operator, "newest updatedAt wins")
}

func TestExactPassPreservesDistinctKeys(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N123AB", day1, t1, "ntsb"),
		event("N123AB", day2, t1, "ntsb"), // same reg, different day: distinct key
	}
	out := e.Dedupe(in)
	assert.Len(t, out, 2)
}

func TestMergeTieBreakKeepsFirstSeen(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N123AB", day1, t1, "first"),
		event("N123AB", day1, t1, "second"), // identical updatedAt
	}
	out := e.Dedupe(in)
	require.Len(t, out, 1)
	assert.Equal(t, "op-first", out[0].Operator)
	assert.Len(t, out[0].Sources, 2)
}

func TestMergeTakesWinnerEnBloc(t *testing.T) {
	e := New(DefaultConfig())
	older := event("N123AB", day1, t1, "ntsb")
	older.Summary = "older summary"
	fat := 2
	older.Fatalities = &fat

	newerEv := event("N123AB", day1, t2, "avherald")
	newerEv.Summary = "newer summary"
	// newer record has no fatalities field at all

	out := e.Dedupe([]types.NormalizedEvent{older, newerEv})
	require.Len(t, out, 1)
	// En-bloc merge: the winner's scalars are taken wholesale, including
	// fields the loser happened to populate
	assert.Equal(t, "newer summary", out[0].Summary)
	assert.Nil(t, out[0].Fatalities)
}

func TestFuzzyPassClockSkew(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N123AB", day1, t1, "ntsb"),
		event("N123AB", day2, t2, "avherald"), // one day later: exact miss, fuzzy hit
	}

	exact := e.Dedupe(in)
	require.Len(t, exact, 2)

	out := e.FuzzyDedupe(exact)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Sources, 2)
	assert.Equal(t, "op-avherald", out[0].Operator)
}

func TestFuzzyPassRegistrationFormatting(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N123AB", day1, t1, "ntsb"),
		event("n-123ab", day1, t2, "asn"),
	}

	out := e.Run(in)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Sources, 2)
}

func TestFuzzyPassRespectsTolerance(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N123AB", day1, t1, "ntsb"),
		event("N123AB", day1.AddDate(0, 0, 3), t2, "asn"), // outside ±24h
	}
	out := e.Run(in)
	assert.Len(t, out, 2)
}

func TestFuzzyPassSkipsSentinels(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("UNREG-ntsb-a", day1, t1, "ntsb"),
		event("UNREG-ntsb-b", day1, t1, "ntsb"),
		event("UNREG-ntsb-a", day1, t2, "ntsb"), // same sentinel: exact pass already merged these upstream
	}
	out := e.FuzzyDedupe(in)
	assert.Len(t, out, 3, "sentinel registrations must never fuzzy-merge")
}

func TestDedupeMonotonic(t *testing.T) {
	e := New(DefaultConfig())
	in := []types.NormalizedEvent{
		event("N1", day1, t1, "a"),
		event("N2", day1, t1, "a"),
		event("N1", day1, t2, "b"),
		event("PH-BQC", day2, t1, "a"),
	}
	out := e.Run(in)
	assert.LessOrEqual(t, len(out), len(in))
}

func TestDedupeEmptyInput(t *testing.T) {
	e := New(DefaultConfig())
	assert.Nil(t, e.Dedupe(nil))
	assert.Nil(t, e.FuzzyDedupe(nil))
}

func TestCanonicalRegistration(t *testing.T) {
	e := New(DefaultConfig())
	tests := []struct {
		in, want string
	}{
		{"N123AB", "N123AB"},
		{"n-123ab", "N123AB"},
		{"PH-BQC", "PHBQC"},
		{" vh-oqa ", "VHOQA"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.canonicalRegistration(tt.in), "input %q", tt.in)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.DateTolerance = -time.Hour
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DateTolerance = 30 * 24 * time.Hour
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinRegistrationLength = 99
	assert.Error(t, cfg.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AVSENTRY_DEDUP_DATE_TOLERANCE_HOURS", "48")
	t.Setenv("AVSENTRY_DEDUP_NORMALIZE_REG", "false")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.DateTolerance)
	assert.False(t, cfg.NormalizeRegistrations)
	assert.Equal(t, 2, cfg.MinRegistrationLength)
}

func TestConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("AVSENTRY_DEDUP_DATE_TOLERANCE_HOURS", "not-a-number")
	_, err := ConfigFromEnv()
	assert.Error(t, err)
}
