// internal/domain/phone/phone.go
package phone

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultCountryCode is prefixed onto bare domestic numbers.
const DefaultCountryCode = "91"

var (
	nonDigitRe   = regexp.MustCompile(`[^0-9]`)
	scientificRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[eE]\+?[0-9]+$`)
	decimalRe    = regexp.MustCompile(`^([0-9]+)\.0+$`)
)

// Normalizer canonicalizes free-form phone strings into the comparable key
// used to join leads, log entries and dispatch locks.
type Normalizer struct {
	CountryCode string
}

// Normalize returns the canonical form of a raw phone string. It never fails:
// input that cannot be repaired comes back as a best-effort digit string.
//
// Rules: non-digit characters are stripped (a leading '+' only marks an
// already-prefixed number), scientific-notation artifacts from spreadsheet
// exports are expanded, a bare 10-digit domestic number gains the country
// code, an 11-digit number with a leading zero collapses to the same form,
// and numbers already carrying the country code pass through unchanged.
func (n Normalizer) Normalize(raw string) string {
	cc := n.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Spreadsheet exports sometimes hand us "9.876543210E9" or "9876543210.0"
	// instead of digits.
	if scientificRe.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = strconv.FormatFloat(f, 'f', 0, 64)
		}
	} else if m := decimalRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	hadPlus := strings.HasPrefix(s, "+")
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return ""
	}

	if hadPlus {
		// "+<cc><number>" is already canonical apart from the punctuation.
		return digits
	}

	switch {
	case len(digits) == 10:
		return cc + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		return cc + digits[1:]
	case len(digits) == len(cc)+10 && strings.HasPrefix(digits, cc):
		return digits
	}

	// Unrecognized shape: best effort, keep the digits as the key.
	return digits
}

// Normalize canonicalizes with the default country code.
func Normalize(raw string) string {
	return Normalizer{}.Normalize(raw)
}
