// Package matcher ranks scraped products against a search phrase.
// scores are 0-100, only a true exact match reaches 100.
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"cartpilot/lib/textutil"
	"cartpilot/store"

	"github.com/antzucaro/matchr"
)

type Scored struct {
	store.Product
	Score  float64
	Reason string
}

// suffixes stripped by the stemmer. the input is diacritic-folded
// before stemming so the endings are folded too. longest first so
// "uose" wins over "os".
var endings = []string{
	"uose", "ams", "ais", "iu", "us", "es", "os", "as", "is", "ai", "u", "e",
}

var stopWords = map[string]bool{
	"su": true, "be": true, "ir": true, "arba": true, "per": true,
	"uz": true, "po": true, "prie": true, "nuo": true, "i": true, "is": true,
}

func stemWord(word string) string {
	if len(word) <= 3 {
		return word
	}
	for _, ending := range endings {
		if strings.HasSuffix(word, ending) && len(word)-len(ending) >= 3 {
			return word[:len(word)-len(ending)]
		}
	}
	return word
}

// extractKeywords normalizes the text, drops short words and stop words
// and stems the remainder.
func extractKeywords(text string) []string {
	normalized := textutil.NormalizeText(text)

	var keywords []string
	for _, word := range strings.Split(normalized, " ") {
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		keywords = append(keywords, stemWord(word))
	}
	return keywords
}

func score(productName, query string) (float64, string) {
	normalizedProduct := textutil.NormalizeText(productName)
	normalizedQuery := textutil.NormalizeText(query)

	if normalizedProduct == normalizedQuery {
		return 100, "exact match"
	}
	if strings.HasPrefix(normalizedProduct, normalizedQuery) {
		return 95, "starts with query"
	}

	productKeywords := extractKeywords(productName)
	queryKeywords := extractKeywords(query)

	if len(queryKeywords) == 0 {
		return 0, "no valid keywords"
	}

	matched := 0
	for _, queryKw := range queryKeywords {
		for _, prodKw := range productKeywords {
			if prodKw == queryKw ||
				strings.Contains(prodKw, queryKw) ||
				strings.Contains(queryKw, prodKw) {
				matched++
				break
			}
		}
	}

	ratio := float64(matched) / float64(len(queryKeywords))

	var out float64
	var reason string
	switch {
	case ratio == 1:
		out = 85
		reason = "all keywords match"
		// bonus when the keywords appear as a contiguous subsequence
		queryOrder := strings.Join(queryKeywords, " ")
		productOrder := strings.Join(productKeywords, " ")
		if strings.Contains(productOrder, queryOrder) {
			out += 10
			reason = "all keywords in order"
		}
	case ratio >= 0.7:
		out = 60 + ratio*20
		reason = fmt.Sprintf("%d/%d keywords match", matched, len(queryKeywords))
	case ratio > 0:
		out = 40 + ratio*20
		reason = fmt.Sprintf("%d/%d keywords match", matched, len(queryKeywords))
	default:
		similarity := similarity(normalizedProduct, normalizedQuery)
		out = similarity * 35
		reason = fmt.Sprintf("fuzzy match (%.0f%% similar)", similarity*100)
	}

	// shorter product names carry less brand/description noise
	lengthRatio := float64(len(normalizedQuery)) / float64(len(normalizedProduct))
	if lengthRatio >= 0.4 && lengthRatio < 1.5 {
		out += 5
	}
	// penalize noisy long titles
	if len(productKeywords) > len(queryKeywords)*3 {
		out -= 5
	}

	if out < 0 {
		out = 0
	}
	if out > 99 {
		out = 99
	}
	return out, reason
}

// normalized edit-distance similarity in [0, 1]
func similarity(a, b string) float64 {
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 1
	}
	distance := matchr.Levenshtein(a, b)
	return float64(longer-distance) / float64(longer)
}

// Rank scores every product against the query and returns a shortlist of
// at most topN entries. the single best match is always first; from the
// remainder up to 2 discount-flagged products are pulled forward since
// discounted items tend to be disproportionately good value, then the
// rest fill the remaining slots in relevance order. deterministic for
// identical inputs, ties keep input order.
func Rank(products []store.Product, query string, topN int) []Scored {
	if len(products) == 0 || topN <= 0 {
		return nil
	}

	scored := make([]Scored, len(products))
	for i, p := range products {
		s, reason := score(p.Name, query)
		scored[i] = Scored{Product: p, Score: s, Reason: reason}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) == 1 {
		return scored
	}

	best := scored[0]
	rest := scored[1:]

	var discounted, regular []Scored
	for _, p := range rest {
		if p.HasDiscount {
			discounted = append(discounted, p)
		} else {
			regular = append(regular, p)
		}
	}
	if len(discounted) > 2 {
		discounted = discounted[:2]
	}

	out := make([]Scored, 0, topN)
	out = append(out, best)
	out = append(out, discounted...)
	remaining := topN - len(out)
	if remaining > len(regular) {
		remaining = len(regular)
	}
	if remaining > 0 {
		out = append(out, regular[:remaining]...)
	}
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// BestMatch returns the highest scoring product, if any.
func BestMatch(products []store.Product, query string) (Scored, bool) {
	ranked := Rank(products, query, 1)
	if len(ranked) == 0 {
		return Scored{}, false
	}
	return ranked[0], true
}
