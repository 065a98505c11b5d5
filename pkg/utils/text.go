// Package utils provides shared utilities for text, math, and logging.
package utils

import "unicode/utf8"

// Truncate returns s cut to at most maxRunes runes with suffix appended when it was cut.
// If maxRunes is 0 or negative, returns s unchanged.
func Truncate(s string, maxRunes int, suffix string) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + suffix
}

// Preview returns the first n runes of s, marked with "..." when cut.
func Preview(s string, n int) string {
	return Truncate(s, n, "...")
}
