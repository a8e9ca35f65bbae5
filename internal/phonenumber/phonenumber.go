// Package phonenumber normalizes caller-supplied phone numbers to E.164 (or
// the carrier-specific digits-only format some drivers require) in one
// place, so the 10-digit-implies-country-code-91 rule has a single
// implementation and a single test suite instead of being re-implemented
// per caller. Its callers are the signaling router's E.164 validation
// (ToE164) and the TokenExchange driver (NormalizeDigits).
package phonenumber

import "strings"

// defaultCountryCode is prepended to a bare 10-digit national number.
const defaultCountryCode = "91"

// NormalizeDigits strips every non-digit character from phone and, if the
// result is exactly 10 digits (a domestic number with no country code),
// prepends defaultCountryCode. Numbers of any other length are returned
// digits-only and unprefixed.
func NormalizeDigits(phone string) string {
	digits := digitsOnly(phone)
	if len(digits) == 10 {
		return defaultCountryCode + digits
	}
	return digits
}

// ToE164 normalizes phone to E.164 form (a leading '+' followed by digits).
// It applies the same 10-digit country-code rule as NormalizeDigits.
func ToE164(phone string) string {
	return "+" + NormalizeDigits(phone)
}

func digitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
