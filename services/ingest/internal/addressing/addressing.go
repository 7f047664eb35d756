// Package addressing normalises free-text address fields from the
// geographic extract and enforces the storage length limits.
package addressing

import (
	"regexp"
	"strings"
	"unicode"
)

// Storage column limits, applied before records leave a parser.
const (
	MaxHouseNumber = 50
	MaxHouseName   = 200
	MaxFlat        = 50
	MaxStreet      = 200
	MaxSuburb      = 100
	MaxCity        = 100
	MaxCounty      = 100
	MaxPostcodeRaw = 20
)

// Common UK street abbreviations expanded during normalisation.
var streetAbbreviations = map[string]string{
	"RD":   "ROAD",
	"ST":   "STREET",
	"AVE":  "AVENUE",
	"AV":   "AVENUE",
	"DR":   "DRIVE",
	"LN":   "LANE",
	"CT":   "COURT",
	"PL":   "PLACE",
	"CL":   "CLOSE",
	"CRES": "CRESCENT",
	"TERR": "TERRACE",
	"GRN":  "GREEN",
	"GDN":  "GARDEN",
	"GDNS": "GARDENS",
	"SQ":   "SQUARE",
	"PK":   "PARK",
	"BLVD": "BOULEVARD",
}

var multiSpaceRE = regexp.MustCompile(`\s+`)

// NormaliseStreet collapses whitespace, expands abbreviations and
// title-cases a street name. Returns "" for blank input.
func NormaliseStreet(raw string) string {
	cleaned := multiSpaceRE.ReplaceAllString(strings.TrimSpace(raw), " ")
	if cleaned == "" {
		return ""
	}

	words := strings.Split(strings.ToUpper(cleaned), " ")
	for i, w := range words {
		if full, ok := streetAbbreviations[w]; ok {
			words[i] = full
		}
	}
	return titleCase(strings.Join(words, " "))
}

// NormaliseCity collapses whitespace and title-cases a city name.
// Returns "" for blank input.
func NormaliseCity(raw string) string {
	cleaned := multiSpaceRE.ReplaceAllString(strings.TrimSpace(raw), " ")
	if cleaned == "" {
		return ""
	}
	return titleCase(cleaned)
}

// Truncate cuts s to at most max characters. Counting runes rather than
// bytes keeps the cut on a character boundary; the storage limits are
// character limits.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

// titleCase capitalises every letter that follows a non-letter, so
// hyphenated and apostrophe names come out as "High-Street" and "O'Neill".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) && !prevLetter {
			r = unicode.ToUpper(r)
		}
		prevLetter = unicode.IsLetter(r)
		b.WriteRune(r)
	}
	return b.String()
}
