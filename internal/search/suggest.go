package search

import (
	"sort"
	"strings"

	"openapi-mcp-server/internal/index"
)

// suggestionThreshold is the result count below which suggestions are
// generated.
const suggestionThreshold = 3

// maxSuggestions bounds the suggestion list.
const maxSuggestions = 5

// httpMethods recognized for field-scoped rewrites.
var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "TRACE": true,
}

// vocabulary exposes the index term dictionaries the suggester matches
// against.
type vocabulary interface {
	FieldTerms(field string, limit int) ([]string, error)
}

// suggester generates alternative queries when results are sparse.
type suggester struct {
	vocab vocabulary
}

// Suggest produces up to maxSuggestions alternatives for a sparse query:
// typo fixes, broader queries, similar vocabulary terms, field-scoped
// rewrites, and API-pattern suggestions.
func (s *suggester) Suggest(parsed *ParsedQuery, terms []Term) []Suggestion {
	var out []Suggestion
	seen := make(map[string]bool)
	add := func(sug Suggestion) {
		if sug.Query == "" || seen[sug.Query] || len(out) >= maxSuggestions {
			return
		}
		seen[sug.Query] = true
		out = append(out, sug)
	}

	words := s.termVocabulary()

	// Typo fixes: closest vocabulary word within edit distance 2.
	for _, term := range terms {
		if fix, distance := closestWord(term.Raw, words); fix != "" {
			add(Suggestion{
				Query:    fix,
				Score:    1.0 - float64(distance)/3.0,
				Category: SuggestTypoFix,
			})
		}
	}

	// Broader query: drop the most specific (longest) token.
	if len(terms) > 1 {
		longest := 0
		for i, term := range terms {
			if len(term.Raw) > len(terms[longest].Raw) {
				longest = i
			}
		}
		var kept []string
		for i, term := range terms {
			if i != longest {
				kept = append(kept, term.Raw)
			}
		}
		add(Suggestion{Query: strings.Join(kept, " "), Score: 0.6, Category: SuggestBroader})
	}

	// Similar terms: vocabulary words containing a query token.
	for _, term := range terms {
		if len(term.Raw) < 3 {
			continue
		}
		for _, word := range words {
			if word != term.Raw && strings.Contains(word, term.Raw) {
				add(Suggestion{Query: word, Score: 0.5, Category: SuggestSimilar})
				break
			}
		}
	}

	// Field-scoped rewrites: free text that names an HTTP method or a
	// status code belongs in a qualifier.
	for _, term := range terms {
		upper := strings.ToUpper(term.Raw)
		if httpMethods[upper] {
			add(Suggestion{Query: "method:" + upper, Score: 0.7, Category: SuggestFieldScope})
		}
		if len(term.Raw) == 3 && term.Raw >= "100" && term.Raw <= "599" {
			add(Suggestion{Query: "status:" + term.Raw, Score: 0.7, Category: SuggestFieldScope})
		}
	}

	// API-pattern suggestions from the resource vocabulary.
	if resources, err := s.vocab.FieldTerms(index.FieldResourceName, 3); err == nil {
		for _, resource := range resources {
			add(Suggestion{Query: "path:" + resource, Score: 0.4, Category: SuggestAPIPattern})
		}
	}
	add(Suggestion{Query: "auth:bearer", Score: 0.3, Category: SuggestAPIPattern})

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// termVocabulary merges the keyword and searchable-text dictionaries.
func (s *suggester) termVocabulary() []string {
	seen := make(map[string]bool)
	var words []string
	for _, field := range []string{index.FieldKeywords, index.FieldSearchableText} {
		terms, err := s.vocab.FieldTerms(field, 2000)
		if err != nil {
			continue
		}
		for _, term := range terms {
			if len(term) > 2 && !seen[term] {
				seen[term] = true
				words = append(words, term)
			}
		}
	}
	sort.Strings(words)
	return words
}

// closestWord finds the vocabulary word nearest to the token by edit
// distance, accepting distance 1 or 2 only.
func closestWord(token string, words []string) (string, int) {
	best := ""
	bestDistance := 3
	for _, word := range words {
		if word == token {
			return "", 0
		}
		// Length difference is a lower bound on edit distance.
		if abs(len(word)-len(token)) >= bestDistance {
			continue
		}
		if d := editDistance(token, word, bestDistance); d < bestDistance {
			best = word
			bestDistance = d
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestDistance
}

// editDistance computes Levenshtein distance with a cutoff; any value at or
// above the bound returns the bound.
func editDistance(a, b string, bound int) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin >= bound {
			return bound
		}
		prev, cur = cur, prev
	}
	if prev[lb] > bound {
		return bound
	}
	return prev[lb]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
