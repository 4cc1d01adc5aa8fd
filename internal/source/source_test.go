package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Timeout = 2 * time.Second
	opts.Limiter = nil
	return opts
}

func TestNTSBFixtureParsing(t *testing.T) {
	a := NewNTSB("https://example.invalid", testOptions())
	records, err := a.fetchFixture(context.Background(), DefaultWindowDays)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "ntsb", first.Source)
	assert.Equal(t, "WPR24LA101", first.SourceID)
	assert.Equal(t, "N9876F", first.Registration)
	assert.Equal(t, "C172", first.AircraftType)
	assert.Equal(t, "KPAO", first.AirportICAO)
	assert.Equal(t, "United States", first.Country)
	require.NotNil(t, first.Injuries)
	assert.Equal(t, 1, *first.Injuries)
}

func TestAVHeraldFixtureParsing(t *testing.T) {
	a := NewAVHerald("https://example.invalid/rss", testOptions())
	records, err := a.fetchFixture(context.Background(), DefaultWindowDays)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "avherald", first.Source)
	assert.Equal(t, "51a2c301", first.SourceID)
	assert.Equal(t, "N123AB", first.Registration)
	assert.Equal(t, "B738", first.AircraftType)
	assert.Equal(t, "Sample Airlines", first.Operator)
	assert.Equal(t, time.Date(2024, 1, 15, 18, 40, 0, 0, time.UTC), first.Date)
}

func TestASNFixtureParsing(t *testing.T) {
	a := NewASN("https://example.invalid", testOptions())
	records, err := a.fetchFixture(context.Background(), DefaultWindowDays)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "asn", first.Source)
	assert.Equal(t, "D-AIZU", first.Registration)
	assert.Equal(t, "A320", first.AircraftType)
	assert.Equal(t, "Medfly Express", first.Operator)
	assert.Equal(t, "Germany", first.Country)
	assert.Equal(t, time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC), first.Date)

	// Row with an empty operator cell still emitted
	assert.Equal(t, "N9876F", records[1].Registration)
	assert.Empty(t, records[1].Operator)
}

func TestFallbackLiveFailureUsesFixture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewNTSB(srv.URL, testOptions())
	records := a.FetchRecent(context.Background(), DefaultWindowDays)
	require.Len(t, records, 3, "fixture tier should back the failed live tier")
	assert.Equal(t, "WPR24LA101", records[0].SourceID)
}

func TestFallbackProductionNeverServesOfflineData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.AllowOffline = false

	a := NewNTSB(srv.URL, opts)
	records := a.FetchRecent(context.Background(), DefaultWindowDays)
	assert.Empty(t, records, "production chain must degrade to an empty set")
}

func TestNTSBLiveWindowedStop(t *testing.T) {
	now := time.Now().UTC()
	pageFor := func(page int) map[string]any {
		// Page 1: recent cases, page 2: cases from before any sane cutoff
		dates := []time.Time{now.AddDate(0, 0, -1), now.AddDate(0, 0, -2)}
		if page > 1 {
			dates = []time.Time{now.AddDate(-2, 0, 0), now.AddDate(-3, 0, 0)}
		}
		cases := make([]map[string]any, 0, ntsbPageSize)
		for i := 0; i < ntsbPageSize; i++ {
			d := dates[i%len(dates)]
			cases = append(cases, map[string]any{
				"ntsb_number":  fmt.Sprintf("CEN%02d%03d", page, i),
				"event_date":   d.Format(time.RFC3339),
				"registration": fmt.Sprintf("N%d%dXX", page, i),
			})
		}
		return map[string]any{"cases": cases, "page": page}
	}

	var pagesServed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		page := 1
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		json.NewEncoder(w).Encode(pageFor(page))
	}))
	defer srv.Close()

	a := NewNTSB(srv.URL, testOptions())
	records, err := a.fetchLive(context.Background(), 30)
	require.NoError(t, err)

	// Page 2's first case predates the cutoff, so the walk stops there
	assert.Equal(t, 2, pagesServed)
	assert.Len(t, records, ntsbPageSize)
	limit := cutoff(30)
	for _, r := range records {
		assert.False(t, r.Date.Before(limit), "record %s outside window", r.SourceID)
	}
}

func TestSyntheticGating(t *testing.T) {
	opts := testOptions()
	require.NotNil(t, NewSynthetic(opts))

	opts.AllowOffline = false
	assert.Nil(t, NewSynthetic(opts), "synthetic samples must be unreachable in production")
}

func TestSyntheticRecordsInsideWindow(t *testing.T) {
	a := NewSynthetic(testOptions())
	records := a.FetchRecent(context.Background(), DefaultWindowDays)
	require.NotEmpty(t, records)
	limit := cutoff(DefaultWindowDays)
	for _, r := range records {
		assert.False(t, r.Date.Before(limit))
		assert.NotEmpty(t, r.Registration)
	}
}
