// Package phone converts raw phone strings into the E.164 form the voicemail
// provider dials.
package phone

import "strings"

const (
	// CountryCode is prepended to bare 10-digit national numbers.
	CountryCode = "1"
	// MinLength is the shortest normalized number accepted for dispatch.
	MinLength = 11
)

// Normalize strips every non-digit and applies the North American rules:
//
//	"7603977807"   -> "+17603977807"
//	"17603977807"  -> "+17603977807"
//	"+17603977807" -> "+17603977807"
//
// It never fails; callers check the result with Valid.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 10 {
		return "+" + CountryCode + digits
	}
	// 11 digits led by the country code, and everything else, only lack the marker.
	return "+" + digits
}

// Valid reports whether a normalized number is long enough to dial.
func Valid(normalized string) bool {
	return len(normalized) >= MinLength && strings.HasPrefix(normalized, "+")
}
