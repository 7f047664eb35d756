// Package pcode normalises and validates UK postcodes.
package pcode

import (
	"regexp"
	"strings"
)

// Covers the standard outward/inward formats:
// A9 9AA, A99 9AA, A9A 9AA, AA9 9AA, AA99 9AA, AA9A 9AA.
var postcodeRE = regexp.MustCompile(`^([A-Z]{1,2}[0-9][A-Z0-9]?)\s*([0-9][A-Z]{2})$`)

// Normalise converts a raw postcode to the canonical "SW1A 1AA" form with a
// single separating space. Returns "" when the input is not a valid UK
// postcode. Normalising an already-normalised code returns it unchanged.
func Normalise(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	m := postcodeRE.FindStringSubmatch(cleaned)
	if m == nil {
		return ""
	}
	return m[1] + " " + m[2]
}

// Valid reports whether raw is a recognisable UK postcode.
func Valid(raw string) bool {
	return Normalise(raw) != ""
}

// NoSpace removes the separating space from a normalised postcode,
// e.g. "SW1A 1AA" -> "SW1A1AA". Used for prefix search.
func NoSpace(normalised string) string {
	return strings.ReplaceAll(normalised, " ", "")
}
