package utils

import "strings"

// Preview returns the first limit runes of text on a single line, with an
// ellipsis when truncated.
func Preview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "…"
}
