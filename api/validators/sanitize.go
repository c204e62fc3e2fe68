package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText trims s, turns tabs and newlines into spaces, drops other control
// characters and cuts the result to maxBytes without splitting a rune.
func CleanText(s string, maxBytes int) string {
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s))
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
