package source

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avsentry/avsentry/internal/httputil"
	"github.com/avsentry/avsentry/internal/types"
)

//go:embed fixtures/ntsb_cases.json
var ntsbFixture []byte

const ntsbPageSize = 50

// NTSBAdapter pulls investigation cases from an NTSB-style JSON case API.
// The API returns pages sorted newest-first; the adapter walks pages until a
// case's event date falls before the lookback cutoff.
type NTSBAdapter struct {
	baseURL string
	client  *http.Client
	opts    Options
}

// NewNTSB creates the NTSB adapter.
func NewNTSB(baseURL string, opts Options) *NTSBAdapter {
	if baseURL == "" {
		baseURL = "https://data.ntsb.gov"
	}
	return &NTSBAdapter{
		baseURL: baseURL,
		client:  httputil.NewClient(opts.timeout()),
		opts:    opts,
	}
}

func (a *NTSBAdapter) Name() string { return "ntsb" }

// FetchRecent runs the adapter's fallback chain.
func (a *NTSBAdapter) FetchRecent(ctx context.Context, windowDays int) []types.RawEvent {
	tiers := []tier{{name: "live", fetch: a.fetchLive}}
	if a.opts.AllowOffline {
		tiers = append(tiers, tier{name: "fixture", fetch: a.fetchFixture})
	}
	return runTiers(ctx, a.Name(), windowDays, tiers)
}

func (a *NTSBAdapter) fetchLive(ctx context.Context, windowDays int) ([]types.RawEvent, error) {
	limit := cutoff(windowDays)
	fetchedAt := time.Now().UTC()

	var all []types.RawEvent
	for page := 1; page <= maxPages; page++ {
		if err := a.opts.wait(ctx); err != nil {
			return nil, err
		}

		body, err := a.getPage(ctx, limit, page)
		if err != nil {
			return nil, err
		}

		records, err := a.parsePage(body, fetchedAt)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}

		done := false
		for _, r := range records {
			// Newest-first: the first record past the cutoff ends the walk
			if r.Date.Before(limit) {
				done = true
				break
			}
			all = append(all, r)
		}
		if done || len(records) < ntsbPageSize {
			break
		}
	}
	return all, nil
}

func (a *NTSBAdapter) getPage(ctx context.Context, from time.Time, page int) ([]byte, error) {
	u, err := url.Parse(a.baseURL + "/api/v2/cases")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", time.Now().UTC().Format("2006-01-02"))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(ntsbPageSize))
	u.RawQuery = q.Encode()

	var body []byte
	err = httputil.Retry(ctx, 3, 500*time.Millisecond, 5*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if a.opts.UserAgent != "" {
			req.Header.Set("User-Agent", a.opts.UserAgent)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("ntsb %d: %s", resp.StatusCode, string(b))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

func (a *NTSBAdapter) fetchFixture(ctx context.Context, windowDays int) ([]types.RawEvent, error) {
	return a.parsePage(ntsbFixture, time.Now().UTC())
}

// ntsbCase mirrors one entry of the case API's JSON shape.
type ntsbCase struct {
	NTSBNumber   string    `json:"ntsb_number"`
	EventDate    time.Time `json:"event_date"`
	Registration string    `json:"registration"`
	AircraftType string    `json:"aircraft_type"`
	Operator     string    `json:"operator"`
	AirportCode  string    `json:"airport_code"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Country      string    `json:"country"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	Fatalities   *int      `json:"fatalities"`
	Injuries     *int      `json:"injuries"`
	Narrative    string    `json:"narrative"`
	Status       string    `json:"status"`
}

// parsePage decodes one API page. Shared verbatim by the live and fixture
// tiers so both paths exercise identical extraction logic.
func (a *NTSBAdapter) parsePage(body []byte, fetchedAt time.Time) ([]types.RawEvent, error) {
	var page struct {
		Cases []ntsbCase `json:"cases"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse case page: %w", err)
	}

	records := make([]types.RawEvent, 0, len(page.Cases))
	for _, c := range page.Cases {
		if c.NTSBNumber == "" {
			continue
		}
		records = append(records, types.RawEvent{
			Source:       a.Name(),
			SourceID:     c.NTSBNumber,
			URL:          a.baseURL + "/cases/" + c.NTSBNumber,
			FetchedAt:    fetchedAt,
			Date:         c.EventDate.UTC(),
			Registration: c.Registration,
			AircraftType: c.AircraftType,
			Operator:     c.Operator,
			AirportICAO:  c.AirportCode,
			Country:      c.Country,
			Region:       c.State,
			Lat:          c.Latitude,
			Lon:          c.Longitude,
			Fatalities:   c.Fatalities,
			Injuries:     c.Injuries,
			Summary:      c.Narrative,
			Status:       c.Status,
		})
	}
	return records, nil
}
