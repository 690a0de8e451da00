package identity

import (
	"strings"
	"time"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeContact trims a contact value. Formatting rules (E.164 etc.) belong to the caller's validator.
func NormalizeContact(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeIdentifier canonicalizes a government identifier before sealing and fingerprinting,
// so that surrounding whitespace can never produce two fingerprints for one identifier.
func NormalizeIdentifier(s string) string {
	return strings.TrimSpace(s)
}

// normalizeDate truncates to a UTC calendar date.
func normalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
