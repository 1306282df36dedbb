package metricscalculator

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize turns raw transcript text into the token sequence used for scoring:
// lowercase, every rune that is not a letter, digit or whitespace dropped
// (not replaced, so "don't" becomes "dont"), split on whitespace runs.
//
// Normalize(strings.Join(Normalize(x), " ")) equals Normalize(x).
func Normalize(text string) []string {
	lowered := cases.Lower(language.Und).String(text)

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)

	return strings.Fields(stripped)
}

// NormalizeText is Normalize joined back into a single-spaced string.
func NormalizeText(text string) string {
	return strings.Join(Normalize(text), " ")
}
