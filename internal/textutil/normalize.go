// Package textutil holds the text folding and similarity helpers shared by
// the segmenter, the mapper and the normalizer.
package textutil

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var leadingNumbering = regexp.MustCompile(`^\s*\d+(?:\.\d+)*\.?\s+`)

// StripAccents removes combining marks after canonical decomposition,
// so "Identité" becomes "Identite".
func StripAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var sb strings.Builder
	sb.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return norm.NFC.String(sb.String())
}

// Fold lower-cases s, strips accents, turns punctuation into spaces and
// collapses whitespace. Numbering is kept.
func Fold(s string) string {
	s = strings.ToLower(StripAccents(s))
	var sb strings.Builder
	sb.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// NormalizeTitle is Fold with any leading section numbering ("2.1. ") removed.
func NormalizeTitle(s string) string {
	return Fold(leadingNumbering.ReplaceAllString(s, ""))
}

// NumberingPrefix returns the leading "1.2." style prefix of s, if any.
func NumberingPrefix(s string) string {
	m := leadingNumbering.FindString(s)
	return strings.TrimSpace(m)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Round2 rounds to two decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
