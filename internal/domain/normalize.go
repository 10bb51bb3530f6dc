package domain

import "strings"

// NormalizeCountryCode trims whitespace and upper-cases an alpha-3 code.
// It does not check the code against any country list.
func NormalizeCountryCode(s string) CountryCode {
	return CountryCode(strings.ToUpper(strings.TrimSpace(s)))
}

// IsAlpha3 reports whether c has the shape of an ISO-3166 alpha-3 code (three ASCII letters A-Z).
func (c CountryCode) IsAlpha3() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}
