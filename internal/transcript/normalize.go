package transcript

import (
	"strings"
	"unicode/utf8"
)

// Normalize removes speech-engine spacing artifacts from one fragment.
//
// Horizontal space runs touching a non-ASCII rune on either side are deleted,
// remaining runs of half-width spaces collapse to one, and newlines are kept.
func Normalize(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	runes := []rune(text)
	var out strings.Builder
	out.Grow(len(text))

	for i := 0; i < len(runes); {
		if !isHorizontalSpace(runes[i]) {
			out.WriteRune(runes[i])
			i++
			continue
		}

		end := i
		for end < len(runes) && isHorizontalSpace(runes[end]) {
			end++
		}

		var prev, next rune
		if i > 0 {
			prev = runes[i-1]
		}
		if end < len(runes) {
			next = runes[end]
		}

		switch {
		case isWide(prev) || isWide(next):
		case containsOnly(runes[i:end], ' '):
			out.WriteByte(' ')
		default:
			out.WriteString(string(runes[i:end]))
		}
		i = end
	}

	return out.String()
}

func isHorizontalSpace(r rune) bool {
	return r == ' ' || r == ideographicSpace
}

// isWide reports non-ASCII, non-space runes (full-width and Japanese text).
func isWide(r rune) bool {
	return r >= utf8.RuneSelf && r != ideographicSpace
}

func containsOnly(runes []rune, want rune) bool {
	for _, r := range runes {
		if r != want {
			return false
		}
	}
	return true
}
