// Package transcript normalizes recognized fragments and merges them into
// paragraph-structured committed text.
package transcript

import (
	"strings"
	"unicode/utf8"
)

const ideographicSpace = '　'

// Options controls fragment preparation before it is committed.
type Options struct {
	Normalize bool
}

// Prepare applies Normalize when enabled and trims otherwise.
func Prepare(raw string, opts Options) string {
	if opts.Normalize {
		return Normalize(raw)
	}
	return strings.TrimSpace(raw)
}

// Merge commits frag onto base. It reports false when base is left unchanged,
// either because frag is empty or because base already ends with it.
func Merge(base string, frag string) (string, bool) {
	if frag == "" {
		return base, false
	}

	stripped := trimTrailingSpaces(base)
	if stripped != "" && strings.HasSuffix(stripped, frag) {
		return base, false
	}
	if stripped == "" {
		return frag, true
	}

	return stripped + separator(stripped, frag) + frag, true
}

func separator(base string, frag string) string {
	if strings.HasSuffix(base, "\n") {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(base)
	first, _ := utf8.DecodeRuneInString(frag)
	if isASCIIAlnum(last) && isASCIIAlnum(first) {
		return " "
	}
	return ""
}

// EnsureLineBreak terminates non-empty text with a single newline.
func EnsureLineBreak(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// EnsureParagraphBreak terminates non-empty text with exactly one blank line.
func EnsureParagraphBreak(text string) string {
	switch {
	case text == "":
		return text
	case strings.HasSuffix(text, "\n\n"):
		return text
	case strings.HasSuffix(text, "\n"):
		return text + "\n"
	default:
		return trimTrailingSpaces(text) + "\n\n"
	}
}

// AppendParagraph appends a manual paragraph break to non-empty text.
func AppendParagraph(text string) string {
	if text == "" {
		return text
	}
	return text + "\n\n"
}

func trimTrailingSpaces(text string) string {
	return strings.TrimRight(text, " 　")
}

func isASCIIAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
