package sandbox

import (
	"strings"
	"unicode"
)

// Sanitize normalizes program output for comparison: NUL bytes and
// control characters other than '\n' and '\t' are dropped, CRLF becomes LF,
// and surrounding whitespace is trimmed. Tabs are kept because they separate
// tokens.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == 0 || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
