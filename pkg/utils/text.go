// Package utils holds small helpers shared by the commands: logging, vector math and text.
package utils

import "strings"

// Truncate shortens s to at most maxLen runes, appending "..." when it cuts.
// A non-positive maxLen returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return strings.TrimRight(string(r[:maxLen]), " ") + "..."
}

// SingleLine collapses all whitespace, including newlines, to single spaces.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
