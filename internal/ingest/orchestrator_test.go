package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsentry/avsentry/internal/dedup"
	"github.com/avsentry/avsentry/internal/normalize"
	"github.com/avsentry/avsentry/internal/source"
	"github.com/avsentry/avsentry/internal/types"
)

type fakeAdapter struct {
	name   string
	events []types.RawEvent
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) FetchRecent(ctx context.Context, windowDays int) []types.RawEvent {
	return a.events
}

// memStore records reconciliation calls and simulates scalar-change detection.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]types.NormalizedEvent // keyed by dedup key
	ids     map[string]string
	sources map[string][]types.SourceAttribution
	nextID  int

	failUpsertFor string // registration whose upsert should fail
	findErr       error
}

func newMemStore() *memStore {
	return &memStore{
		rows:    make(map[string]types.NormalizedEvent),
		ids:     make(map[string]string),
		sources: make(map[string][]types.SourceAttribution),
	}
}

func key(date time.Time, reg string) string {
	return date.UTC().Format(time.RFC3339) + "::" + reg
}

func (s *memStore) FindExisting(ctx context.Context, date time.Time, reg string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return "", s.findErr
	}
	return s.ids[key(date, reg)], nil
}

func (s *memStore) Upsert(ctx context.Context, ev *types.NormalizedEvent) (types.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Registration == s.failUpsertFor {
		return types.UpsertResult{}, fmt.Errorf("disk full")
	}
	k := key(ev.Date, ev.Registration)
	if id, ok := s.ids[k]; ok {
		prev := s.rows[k]
		changed := prev.Summary != ev.Summary || prev.Status != ev.Status
		s.rows[k] = *ev
		return types.UpsertResult{ID: id, Inserted: false, Changed: changed}, nil
	}
	s.nextID++
	id := fmt.Sprintf("ev-%d", s.nextID)
	s.ids[k] = id
	s.rows[k] = *ev
	return types.UpsertResult{ID: id, Inserted: true, Changed: true}, nil
}

func (s *memStore) AppendSource(ctx context.Context, id string, attr types.SourceAttribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources[id] {
		if existing == attr {
			return nil
		}
	}
	s.sources[id] = append(s.sources[id], attr)
	return nil
}

func testOrchestrator(t *testing.T, store Store, adapters ...source.Adapter) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Adapters:   adapters,
		Normalizer: normalize.New(nil),
		Engine:     dedup.New(dedup.DefaultConfig()),
		Store:      store,
	})
	require.NoError(t, err)
	return o
}

func rawEvent(src, id, reg string, date time.Time) types.RawEvent {
	return types.RawEvent{
		Source:       src,
		SourceID:     id,
		URL:          "https://example.test/" + src + "/" + id,
		FetchedAt:    date.Add(time.Hour),
		Date:         date,
		Registration: reg,
		Summary:      "incident involving " + reg,
	}
}

func TestRunRecentIngestInsertsNewEvents(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	o := testOrchestrator(t, store,
		&fakeAdapter{name: "ntsb", events: []types.RawEvent{
			rawEvent("ntsb", "c1", "N123AB", day),
			rawEvent("ntsb", "c2", "N451TC", day.AddDate(0, 0, -2)),
		}},
		&fakeAdapter{name: "asn", events: []types.RawEvent{
			rawEvent("asn", "a1", "G-ABCD", day.AddDate(0, 0, -1)),
		}},
	)

	result, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 3, result.TotalNormalized)
	assert.Equal(t, 2, result.PerSource["ntsb"])
	assert.Equal(t, 1, result.PerSource["asn"])
	assert.Empty(t, result.Failures)
	assert.Len(t, store.rows, 3)
}

func TestRunRecentIngestSecondRunIsIdempotent(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	adapter := &fakeAdapter{name: "ntsb", events: []types.RawEvent{
		rawEvent("ntsb", "c1", "N123AB", day),
	}}
	o := testOrchestrator(t, store, adapter)

	first, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, first.Inserted)

	second, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated, "unchanged payload must not count as an update")
}

func TestRunRecentIngestCountsRealChangesAsUpdates(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	adapter := &fakeAdapter{name: "ntsb", events: []types.RawEvent{
		rawEvent("ntsb", "c1", "N123AB", day),
	}}
	o := testOrchestrator(t, store, adapter)

	_, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)

	adapter.events[0].Summary = "final report published"
	result, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Updated)
}

func TestRunRecentIngestMergesAcrossSources(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	o := testOrchestrator(t, store,
		&fakeAdapter{name: "ntsb", events: []types.RawEvent{
			rawEvent("ntsb", "c1", "N123AB", day),
		}},
		&fakeAdapter{name: "avherald", events: []types.RawEvent{
			rawEvent("avherald", "h1", "N123AB", day),
		}},
	)

	result, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)

	require.Equal(t, 1, result.Inserted)
	require.Len(t, store.ids, 1)
	for _, id := range store.ids {
		assert.Len(t, store.sources[id], 2, "both attributions must survive the merge")
	}
}

func TestRunRecentIngestDropsPreRetentionEvents(t *testing.T) {
	store := newMemStore()
	o := testOrchestrator(t, store, &fakeAdapter{name: "ntsb", events: []types.RawEvent{
		rawEvent("ntsb", "old", "N100OL", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)),
		rawEvent("ntsb", "new", "N200NW", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
	}})

	result, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalNormalized, "count includes filtered events")
	assert.Equal(t, 1, result.Inserted)
	assert.Len(t, store.rows, 1)
}

func TestRunRecentIngestIsolatesPerEventFailures(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.failUpsertFor = "N123AB"
	o := testOrchestrator(t, store, &fakeAdapter{name: "ntsb", events: []types.RawEvent{
		rawEvent("ntsb", "c1", "N123AB", day),
		rawEvent("ntsb", "c2", "N451TC", day.AddDate(0, 0, -1)),
	}})

	result, err := o.RunRecentIngest(context.Background(), 0)
	require.NoError(t, err, "per-event failures must not fail the run")

	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "N123AB", result.Failures[0].Registration)
	assert.Contains(t, result.Failures[0].Err.Error(), "disk full")
}

func TestRunRecentIngestCanceledContext(t *testing.T) {
	store := newMemStore()
	o := testOrchestrator(t, store, &fakeAdapter{name: "ntsb"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunRecentIngest(ctx, 0)
	assert.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Adapters: []source.Adapter{&fakeAdapter{name: "x"}}})
	assert.Error(t, err, "missing normalizer")
}
