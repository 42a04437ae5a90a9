package search

import (
	"strings"

	"github.com/blevesearch/go-porterstemmer"
)

// stopWords are dropped from free text before stemming. The list is small
// on purpose: API vocabularies are terse and over-aggressive removal hurts
// recall.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "at": true, "by": true,
	"is": true, "are": true, "was": true, "be": true, "been": true,
	"and": true, "or": true, "with": true, "that": true, "this": true,
	"it": true, "its": true, "as": true, "from": true, "into": true,
	"how": true, "what": true, "which": true, "where": true, "when": true,
	"do": true, "does": true, "can": true, "i": true, "me": true, "my": true,
	"any": true, "some": true,
}

// Term is one normalized query token with its expansion variants.
type Term struct {
	Raw      string
	Stemmed  string
	Variants []string
}

// NormalizeTerms lowercases, drops stop-words, and stems the free-text
// tokens. Wildcard tokens pass through unstemmed.
func NormalizeTerms(tokens []string) []Term {
	var terms []Term
	for _, token := range tokens {
		lower := strings.ToLower(strings.TrimSpace(token))
		if lower == "" || stopWords[lower] {
			continue
		}
		term := Term{Raw: lower}
		if strings.ContainsAny(lower, "*?") {
			term.Stemmed = lower
		} else {
			term.Stemmed = Stem(lower)
		}
		terms = append(terms, term)
	}
	return terms
}

// Stem applies the Porter stemmer, matching the index-side analyzer.
func Stem(token string) string {
	return string(porterstemmer.StemWithoutLowerCasing([]rune(token)))
}

// OnlyStopWords reports whether the raw tokens were all stop-words; the
// engine treats such a query like an empty one.
func OnlyStopWords(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		if !stopWords[strings.ToLower(token)] {
			return false
		}
	}
	return true
}
