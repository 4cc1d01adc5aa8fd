// Package dedup collapses duplicate reports of the same real-world
// occurrence within one ingestion batch.
//
// Deduplication runs in two passes. The exact pass groups events by the
// literal (dateZ, registration) key. The fuzzy pass then catches
// near-duplicates that survive it: clock-skewed timestamps, inconsistent
// registration casing or punctuation. Both passes merge groups through the
// same comparator ("newest updatedAt wins en bloc, sources unioned"), so
// their semantics cannot drift apart.
//
// Both passes are pure and monotonically non-increasing in event count.
package dedup

import (
	"strings"
	"unicode"

	"github.com/avsentry/avsentry/internal/types"
)

// Engine performs the two deduplication passes.
type Engine struct {
	cfg Config
}

// New creates an Engine with the given config.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run applies the exact pass followed by the fuzzy pass.
func (e *Engine) Run(events []types.NormalizedEvent) []types.NormalizedEvent {
	return e.FuzzyDedupe(e.Dedupe(events))
}

// Dedupe is the exact pass: events sharing a literal (dateZ, registration)
// key are merged into one. Output preserves first-occurrence order.
func (e *Engine) Dedupe(events []types.NormalizedEvent) []types.NormalizedEvent {
	if len(events) == 0 {
		return nil
	}

	groups := make(map[string][]types.NormalizedEvent)
	var order []string
	for _, ev := range events {
		key := ev.DedupKey()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}

	result := make([]types.NormalizedEvent, 0, len(order))
	for _, key := range order {
		result = append(result, mergeGroup(groups[key]))
	}
	return result
}

// FuzzyDedupe is the fuzzy pass: two events are duplicates if their
// registrations canonicalize to the same value and their occurrence dates lie
// within the configured tolerance of each other. Events whose canonical
// registration is too short to be meaningful are passed through untouched.
func (e *Engine) FuzzyDedupe(events []types.NormalizedEvent) []types.NormalizedEvent {
	if len(events) == 0 {
		return nil
	}

	type cluster struct {
		members []types.NormalizedEvent
	}
	// clusters keyed by canonical registration; within a key, membership is
	// decided by date distance to the cluster's first member
	clusters := make(map[string][]*cluster)
	var order []*cluster

	for _, ev := range events {
		reg := e.canonicalRegistration(ev.Registration)
		if len(reg) < e.cfg.MinRegistrationLength || strings.HasPrefix(ev.Registration, types.RegistrationSentinel) {
			c := &cluster{members: []types.NormalizedEvent{ev}}
			order = append(order, c)
			continue
		}

		matched := false
		for _, c := range clusters[reg] {
			anchor := c.members[0].Date
			delta := ev.Date.Sub(anchor)
			if delta < 0 {
				delta = -delta
			}
			if delta <= e.cfg.DateTolerance {
				c.members = append(c.members, ev)
				matched = true
				break
			}
		}
		if !matched {
			c := &cluster{members: []types.NormalizedEvent{ev}}
			clusters[reg] = append(clusters[reg], c)
			order = append(order, c)
		}
	}

	result := make([]types.NormalizedEvent, 0, len(order))
	for _, c := range order {
		result = append(result, mergeGroup(c.members))
	}
	return result
}

// canonicalRegistration uppercases and strips non-alphanumeric characters, so
// "n-123ab" and "N123AB" compare equal. Disabled via config, it only trims
// whitespace.
func (e *Engine) canonicalRegistration(reg string) string {
	if !e.cfg.NormalizeRegistrations {
		return strings.TrimSpace(reg)
	}
	var b strings.Builder
	b.Grow(len(reg))
	for _, r := range reg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// newer returns the member whose UpdatedAt is later. Ties keep a, the
// first-seen member.
func newer(a, b types.NormalizedEvent) types.NormalizedEvent {
	if b.UpdatedAt.After(a.UpdatedAt) {
		return b
	}
	return a
}

// mergeGroup collapses duplicate members into one record: the entire
// non-sources portion of the newest member is taken en bloc, and every
// member's attributions are unioned in input order.
func mergeGroup(members []types.NormalizedEvent) types.NormalizedEvent {
	winner := members[0]
	for _, m := range members[1:] {
		winner = newer(winner, m)
	}

	sources := make([]types.SourceAttribution, 0, len(members))
	for _, m := range members {
		sources = append(sources, m.Sources...)
	}

	merged := winner
	merged.Sources = sources
	return merged
}
