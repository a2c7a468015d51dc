package model

import "strings"

// NormalizeToken cleans a raw token as stored in cookies or local storage:
// surrounding whitespace and quote characters are stripped and every
// backslash is removed. Applying it twice gives the same result.
func NormalizeToken(raw string) string {
	s := raw
	for {
		next := strings.ReplaceAll(s, `\`, "")
		next = strings.TrimSpace(next)
		next = strings.Trim(next, `"'`)
		next = strings.TrimSpace(next)
		if next == s {
			return s
		}
		s = next
	}
}
