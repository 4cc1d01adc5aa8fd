package source

import (
	"regexp"
	"strings"
)

// TitleFields holds the fields the heuristic extractor recovers from a feed
// item's free text. All fields are best-effort and may be empty.
type TitleFields struct {
	Registration string
	AircraftType string
	Operator     string
}

var (
	// US N-numbers: N followed by 1-5 digits and up to two letters
	nNumberRe = regexp.MustCompile(`\bN[1-9]\d{0,4}[A-Z]{0,2}\b`)

	// Hyphenated international registrations: PH-BHA, D-ABYT, VH-OQA, C-FGDT
	hyphenRegRe = regexp.MustCompile(`\b[A-Z]{1,2}-[A-Z0-9]{3,5}\b`)

	// Aircraft type codes: Airbus A3xx, Boeing B7xx (with optional variant
	// letter), and common short manufacturer codes
	typeCodeRe = regexp.MustCompile(`\b(?:A3\d{2}(?:neo)?|B7\d{2}[A-Z]?|C\d{3}|PA\d{2}|BE\d{2}|DH8[A-D]|E\d{3}|CRJ\d{1,3}|ATR\d{2}|MD\d{2}|SR2\d)\b`)

	// Locative prepositions splitting "<operator> <type>" from the location
	locativeRe = regexp.MustCompile(`\s+(?:near|at|over|in|enroute to|en route to)\s+`)
)

// ExtractTitleFields recovers registration, aircraft type, and operator from
// loosely structured title text such as
// "Sample Airlines B738 N123AB near Denver, engine failure on approach".
// The heuristics are deliberately narrow so adapter I/O logic stays free of
// parsing rules.
func ExtractTitleFields(title string) TitleFields {
	var f TitleFields

	if m := nNumberRe.FindString(title); m != "" {
		f.Registration = m
	} else if m := hyphenRegRe.FindString(title); m != "" {
		f.Registration = m
	}

	f.AircraftType = typeCodeRe.FindString(title)

	f.Operator = extractOperator(title, f.Registration, f.AircraftType)
	return f
}

// extractOperator takes the text preceding the first locative preposition and
// strips any registration/type tokens and punctuation from it.
func extractOperator(title, registration, aircraftType string) string {
	head := title
	if loc := locativeRe.FindStringIndex(title); loc != nil {
		head = title[:loc[0]]
	} else if i := strings.IndexAny(title, ",;:"); i >= 0 {
		head = title[:i]
	}

	if registration != "" {
		head = strings.ReplaceAll(head, registration, " ")
	}
	if aircraftType != "" {
		head = strings.ReplaceAll(head, aircraftType, " ")
	}

	head = strings.Trim(head, " \t-–—,.;:()")
	head = strings.Join(strings.Fields(head), " ")

	// A bare leftover token like "a" or "the" is noise, not an operator
	switch strings.ToLower(head) {
	case "", "a", "an", "the", "aircraft", "plane":
		return ""
	}
	return head
}
