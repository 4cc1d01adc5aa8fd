package source

import (
	"context"
	_ "embed"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avsentry/avsentry/internal/httputil"
	"github.com/avsentry/avsentry/internal/types"
)

//go:embed fixtures/avherald.xml
var avheraldFixture []byte

// AVHeraldAdapter reads an Aviation-Herald-style RSS feed. Item titles carry
// the interesting fields as free text, recovered by the heuristic extractor.
type AVHeraldAdapter struct {
	feedURL string
	client  *http.Client
	opts    Options
}

// NewAVHerald creates the avherald adapter.
func NewAVHerald(feedURL string, opts Options) *AVHeraldAdapter {
	if feedURL == "" {
		feedURL = "https://avherald.com/rss"
	}
	return &AVHeraldAdapter{
		feedURL: feedURL,
		client:  httputil.NewClient(opts.timeout()),
		opts:    opts,
	}
}

func (a *AVHeraldAdapter) Name() string { return "avherald" }

// FetchRecent runs the adapter's fallback chain.
func (a *AVHeraldAdapter) FetchRecent(ctx context.Context, windowDays int) []types.RawEvent {
	tiers := []tier{{name: "live", fetch: a.fetchLive}}
	if a.opts.AllowOffline {
		tiers = append(tiers, tier{name: "fixture", fetch: a.fetchFixture})
	}
	return runTiers(ctx, a.Name(), windowDays, tiers)
}

func (a *AVHeraldAdapter) fetchLive(ctx context.Context, windowDays int) ([]types.RawEvent, error) {
	if err := a.opts.wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err := httputil.Retry(ctx, 3, 500*time.Millisecond, 5*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
		if err != nil {
			return err
		}
		if a.opts.UserAgent != "" {
			req.Header.Set("User-Agent", a.opts.UserAgent)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("avherald %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	records, err := a.parseFeed(body, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// The feed is a single unbounded listing, so the window is enforced here
	limit := cutoff(windowDays)
	recent := records[:0]
	for _, r := range records {
		if !r.Date.Before(limit) {
			recent = append(recent, r)
		}
	}
	return recent, nil
}

func (a *AVHeraldAdapter) fetchFixture(ctx context.Context, windowDays int) ([]types.RawEvent, error) {
	return a.parseFeed(avheraldFixture, time.Now().UTC())
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
}

type rssFeed struct {
	Items []rssItem `xml:"channel>item"`
}

// parseFeed decodes an RSS document into raw events. Shared by the live and
// fixture tiers. Items that fail to yield a registration are still emitted;
// the normalizer assigns a sentinel downstream.
func (a *AVHeraldAdapter) parseFeed(body []byte, fetchedAt time.Time) ([]types.RawEvent, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	records := make([]types.RawEvent, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		date := parseRSSDate(item.PubDate)
		if date.IsZero() {
			date = fetchedAt
		}

		fields := ExtractTitleFields(item.Title)
		records = append(records, types.RawEvent{
			Source:       a.Name(),
			SourceID:     id,
			URL:          item.Link,
			FetchedAt:    fetchedAt,
			Date:         date,
			Registration: fields.Registration,
			AircraftType: fields.AircraftType,
			Operator:     fields.Operator,
			Summary:      item.Title,
			Narrative:    item.Description,
		})
	}
	return records, nil
}

func parseRSSDate(s string) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
