// Package textnorm folds and tokenizes text for in-process matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining marks, so "Città" reads "citta".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokens folds s and splits it on every rune that is not a letter or digit.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), isSeparator)
}

// Unique returns tokens without repeats, first occurrence order kept.
func Unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Spaced folds s and replaces separators with single spaces, keeping token
// order. Phrase containment is checked on this form.
func Spaced(s string) string {
	return strings.Join(Tokens(s), " ")
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
