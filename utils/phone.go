package utils

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// Outbound messaging is US-only for now; numbers from providers arrive in many
// shapes ("(415) 555-0100", "+14155550100", "4155550100").
var PhoneRegion = "US"

var ErrPhoneEmpty = errors.New("phone number is empty")

// ParsePhone parses a raw provider phone string against the default region.
// Parse failure means the value is not usable as a phone number at all.
func ParsePhone(raw string) (*libphonenumber.PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrPhoneEmpty
	}
	return libphonenumber.Parse(raw, PhoneRegion)
}

// IsRegionNumber reports whether the parsed number is a valid number for the
// supported region. A well-formed but foreign number fails this check.
func IsRegionNumber(p *libphonenumber.PhoneNumber) bool {
	if p == nil {
		return false
	}
	return libphonenumber.IsValidNumberForRegion(p, PhoneRegion)
}

// FormatE164 renders the canonical form stored in the DB and sent to the
// messaging provider.
func FormatE164(p *libphonenumber.PhoneNumber) string {
	return libphonenumber.Format(p, libphonenumber.E164)
}
