package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims s, folds line breaks and tabs into spaces, drops other
// control and zero-width characters, and truncates to maxLen runes (0 means no limit).
func SanitizeString(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if maxLen <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= maxLen {
		return out
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
