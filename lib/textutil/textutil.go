package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var punctuationRegex = regexp.MustCompile(`[,.;:!?%"'()\[\]/\\-]`)

// maps Lithuanian diacritic letters onto their base latin letters
var diacriticFolds = map[rune]rune{
	'ą': 'a', 'č': 'c', 'ę': 'e', 'ė': 'e', 'į': 'i',
	'š': 's', 'ų': 'u', 'ū': 'u', 'ž': 'z',
}

// Fold lowercases the string and strips Lithuanian diacritics.
func Fold(s string) string {
	s = strings.ToLower(s)
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if folded, ok := diacriticFolds[r]; ok {
			out.WriteRune(folded)
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// NormalizeText folds the string, replaces punctuation with spaces and
// collapses whitespace runs. used for comparing free text against
// scraped product titles.
func NormalizeText(s string) string {
	s = Fold(s)
	s = punctuationRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
