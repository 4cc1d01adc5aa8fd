package source

import (
	"context"
	_ "embed"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avsentry/avsentry/internal/httputil"
	"github.com/avsentry/avsentry/internal/types"
)

//go:embed fixtures/asn_listing.html
var asnFixture []byte

// asnRowRe matches one occurrence row of the listing table: record link,
// date, type, registration, operator, fatalities, location, country.
var asnRowRe = regexp.MustCompile(
	`<tr[^>]*><td[^>]*><a href="([^"]+)"[^>]*>(\d{1,2}-[A-Z]{3}-\d{4})</a></td>` +
		`<td[^>]*>([^<]*)</td><td[^>]*>([^<]*)</td><td[^>]*>([^<]*)</td>` +
		`<td[^>]*>([^<]*)</td><td[^>]*>([^<]*)</td><td[^>]*>([^<]*)</td>`)

// ASNAdapter scrapes an ASN-style HTML occurrence listing. The listing is
// paginated newest-first; the walk halts as soon as a row's date crosses the
// lookback cutoff so the remote history is never fetched in full.
type ASNAdapter struct {
	baseURL string
	client  *http.Client
	opts    Options
}

// NewASN creates the asn adapter.
func NewASN(baseURL string, opts Options) *ASNAdapter {
	if baseURL == "" {
		baseURL = "https://asn.example.org"
	}
	return &ASNAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httputil.NewClient(opts.timeout()),
		opts:    opts,
	}
}

func (a *ASNAdapter) Name() string { return "asn" }

// FetchRecent runs the adapter's fallback chain.
func (a *ASNAdapter) FetchRecent(ctx context.Context, windowDays int) []types.RawEvent {
	tiers := []tier{{name: "live", fetch: a.fetchLive}}
	if a.opts.AllowOffline {
		tiers = append(tiers, tier{name: "fixture", fetch: a.fetchFixture})
	}
	return runTiers(ctx, a.Name(), windowDays, tiers)
}

func (a *ASNAdapter) fetchLive(ctx context.Context, windowDays int) ([]types.RawEvent, error) {
	limit := cutoff(windowDays)
	fetchedAt := time.Now().UTC()

	var all []types.RawEvent
	for page := 1; page <= maxPages; page++ {
		if err := a.opts.wait(ctx); err != nil {
			return nil, err
		}

		body, err := a.getPage(ctx, page)
		if err != nil {
			return nil, err
		}

		records, err := a.parseListing(body, fetchedAt)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}

		done := false
		for _, r := range records {
			if r.Date.Before(limit) {
				done = true
				break
			}
			all = append(all, r)
		}
		if done {
			break
		}
	}
	return all, nil
}

func (a *ASNAdapter) getPage(ctx context.Context, page int) ([]byte, error) {
	u := a.baseURL + "/database/recent?page=" + strconv.Itoa(page)

	var body []byte
	err := httputil.Retry(ctx, 3, 500*time.Millisecond, 5*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
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
			return fmt.Errorf("asn %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

func (a *ASNAdapter) fetchFixture(ctx context.Context, windowDays int) ([]types.RawEvent, error) {
	return a.parseListing(asnFixture, time.Now().UTC())
}

// parseListing extracts occurrence rows from a listing page. Shared by the
// live and fixture tiers. Rows missing a registration are still emitted with
// the cell's free text carried in Summary.
func (a *ASNAdapter) parseListing(body []byte, fetchedAt time.Time) ([]types.RawEvent, error) {
	rows := asnRowRe.FindAllStringSubmatch(string(body), -1)

	var records []types.RawEvent
	for _, row := range rows {
		date, err := parseASNDate(row[2])
		if err != nil {
			continue
		}

		href := row[1]
		recordURL := href
		if strings.HasPrefix(href, "/") {
			recordURL = a.baseURL + href
		}

		location := strings.TrimSpace(html.UnescapeString(row[7]))
		fatalities := parseIntCell(row[6])

		records = append(records, types.RawEvent{
			Source:       a.Name(),
			SourceID:     href,
			URL:          recordURL,
			FetchedAt:    fetchedAt,
			Date:         date,
			Registration: strings.TrimSpace(row[4]),
			AircraftType: strings.TrimSpace(html.UnescapeString(row[3])),
			Operator:     strings.TrimSpace(html.UnescapeString(row[5])),
			Country:      strings.TrimSpace(html.UnescapeString(row[8])),
			Fatalities:   fatalities,
			Summary:      location,
		})
	}
	if len(rows) == 0 && !strings.Contains(string(body), "<table") {
		return nil, fmt.Errorf("failed to parse listing: no occurrence table found")
	}
	return records, nil
}

// parseASNDate parses listing dates like "15-JAN-2024".
func parseASNDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unsupported date: %s", s)
	}
	month := parts[1]
	if len(month) == 3 {
		month = strings.ToUpper(month[:1]) + strings.ToLower(month[1:])
	}
	t, err := time.Parse("2-Jan-2006", parts[0]+"-"+month+"-"+parts[2])
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseIntCell(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
