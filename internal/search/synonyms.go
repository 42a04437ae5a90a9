package search

import "strings"

// maxVariantsPerTerm bounds synonym expansion to cap query fanout.
const maxVariantsPerTerm = 3

// synonymTable holds bidirectional API-vocabulary synonym groups.
var synonymTable = buildSynonyms([][]string{
	{"user", "customer", "account"},
	{"get", "retrieve", "fetch"},
	{"list", "index"},
	{"create", "add", "new"},
	{"update", "edit", "modify"},
	{"delete", "remove"},
	{"search", "find", "query"},
	{"auth", "authentication", "login"},
	{"order", "purchase"},
	{"upload", "import"},
	{"error", "failure"},
	{"token", "credential"},
})

func buildSynonyms(groups [][]string) map[string][]string {
	table := make(map[string][]string)
	for _, group := range groups {
		for _, word := range group {
			for _, other := range group {
				if other != word {
					table[word] = append(table[word], other)
				}
			}
		}
	}
	return table
}

// Expand fills each term's variant list from the synonym table and simple
// plural/singular pairing, bounded to maxVariantsPerTerm.
func Expand(terms []Term) []Term {
	for i := range terms {
		terms[i].Variants = variantsFor(terms[i].Raw)
	}
	return terms
}

func variantsFor(word string) []string {
	var variants []string
	seen := map[string]bool{word: true}
	add := func(v string) {
		if v == "" || seen[v] || len(variants) >= maxVariantsPerTerm {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	for _, syn := range synonymTable[word] {
		add(syn)
	}
	add(pluralPair(word))
	return variants
}

// pluralPair returns the singular for a plural word and vice versa, using
// the common English suffix rules that cover API resource names.
func pluralPair(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses") && len(word) > 3:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && len(word) > 1 && !strings.HasSuffix(word, "ss"):
		return word[:len(word)-1]
	case strings.HasSuffix(word, "y") && len(word) > 1:
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}
