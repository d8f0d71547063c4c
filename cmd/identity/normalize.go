package identity

import "strings"

// NormalizeName trims surrounding whitespace. Display names stay case-sensitive:
// "Ann" and "ann" are different users.
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
