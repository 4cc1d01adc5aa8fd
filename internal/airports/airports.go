// Package airports provides the airport directory the normalizer consults to
// backfill location data from ICAO/IATA codes. The directory is a bundled
// snapshot loaded once; lookups are pure and side-effect free.
package airports

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

//go:embed data/airports.json
var airportData []byte

// Airport is one directory entry.
type Airport struct {
	ICAO    string  `json:"icao"`
	IATA    string  `json:"iata"`
	Name    string  `json:"name"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	Region  string  `json:"region"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Directory resolves airport codes against the bundled snapshot.
type Directory struct {
	once   sync.Once
	err    error
	byICAO map[string]Airport
	byIATA map[string]Airport
}

// NewDirectory creates a directory backed by the embedded snapshot. Loading is
// deferred until the first lookup.
func NewDirectory() *Directory {
	return &Directory{}
}

func (d *Directory) load() {
	var entries []Airport
	if err := json.Unmarshal(airportData, &entries); err != nil {
		d.err = fmt.Errorf("failed to parse airport data: %w", err)
		return
	}
	d.byICAO = make(map[string]Airport, len(entries))
	d.byIATA = make(map[string]Airport, len(entries))
	for _, a := range entries {
		if a.ICAO != "" {
			d.byICAO[a.ICAO] = a
		}
		if a.IATA != "" {
			d.byIATA[a.IATA] = a
		}
	}
}

var codeTokenRe = regexp.MustCompile(`^[A-Z0-9]{3,5}$`)

// NormalizeCode extracts the leading airport code from user- or feed-supplied
// strings. Accepts decorated inputs like "KPAO - Palo Alto Airport" and
// returns "KPAO".
func NormalizeCode(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	beforeDash := value
	for _, sep := range []string{" - ", " – ", " — "} {
		if i := strings.Index(beforeDash, sep); i >= 0 {
			beforeDash = beforeDash[:i]
			break
		}
	}
	fields := strings.Fields(beforeDash)
	if len(fields) == 0 {
		return strings.ToUpper(value)
	}
	token := strings.ToUpper(fields[0])
	if codeTokenRe.MatchString(token) {
		return token
	}
	return strings.ToUpper(value)
}

// candidateCodes generates lookup candidates for a normalized code.
// US local identifiers are also tried as pseudo-ICAO codes prefixed with
// 'K' (7S5 -> K7S5, PAO -> KPAO).
func candidateCodes(code string) []string {
	candidates := []string{code}
	if len(code) == 3 || len(code) == 4 {
		if !strings.HasPrefix(code, "K") && len(code) == 3 {
			candidates = append(candidates, "K"+code)
		}
	}
	return candidates
}

// Resolve looks up an airport by ICAO or IATA code. The input may be a bare
// code or a decorated string; decoration is stripped first. Returns false
// when no entry matches.
func (d *Directory) Resolve(code string) (Airport, bool) {
	d.once.Do(d.load)
	if d.err != nil {
		return Airport{}, false
	}

	normalized := NormalizeCode(code)
	if normalized == "" {
		return Airport{}, false
	}

	for _, c := range candidateCodes(normalized) {
		if a, ok := d.byICAO[c]; ok {
			return a, true
		}
	}
	for _, c := range candidateCodes(normalized) {
		if a, ok := d.byIATA[c]; ok {
			return a, true
		}
	}
	return Airport{}, false
}
