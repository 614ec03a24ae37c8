package utils

import "strings"

// DefaultCountryPrefix is applied to local numbers that carry no country code.
const DefaultCountryPrefix = "55"

// DigitsOnly strips every non-digit rune from the input
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone converts a raw phone string into a +<country><digits> form.
// Local numbers of 10 or 11 digits get the given country prefix; anything
// longer is assumed to already carry its country code. This is a best-effort
// heuristic, not full E.164 validation.
func NormalizePhone(raw, countryPrefix string) string {
	digits := DigitsOnly(raw)
	if digits == "" {
		return ""
	}
	if countryPrefix == "" {
		countryPrefix = DefaultCountryPrefix
	}
	if len(digits) == 10 || len(digits) == 11 {
		return "+" + countryPrefix + digits
	}
	return "+" + digits
}
