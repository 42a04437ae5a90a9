package search

import (
	"strings"
)

// Query types assigned by the classifier.
const (
	QuerySimple   = "simple"
	QueryBoolean  = "boolean"
	QueryField    = "field_specific"
	QueryNatural  = "natural_language"
	QueryMatchAll = "match_all"
)

// FieldTerm is one field:value qualifier.
type FieldTerm struct {
	Field string
	Value string
}

// recognizedFields maps user-visible qualifier names to themselves; the
// compiler translates them to index fields.
var recognizedFields = map[string]bool{
	"path": true, "method": true, "auth": true, "param": true,
	"response": true, "status": true, "tag": true, "type": true,
	"format": true,
}

// ParsedQuery is the outcome of the parse step: qualifiers, boolean
// structure, and the free-text remainder.
type ParsedQuery struct {
	FreeTerms   []string
	FieldTerms  []FieldTerm
	Excluded    []string
	ORGroups    bool
	HasWildcard bool
	MatchAll    bool
	Type        string
	Warnings    []string
}

// Parse extracts field qualifiers, boolean operators, and excluded terms
// from the raw query, leaving the free-text remainder. Malformed syntax is
// downgraded: the offending token joins the free text and a warning is
// recorded.
func Parse(raw string) *ParsedQuery {
	parsed := &ParsedQuery{}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		parsed.Warnings = append(parsed.Warnings, "empty query")
		parsed.Type = QuerySimple
		return parsed
	}
	if trimmed == "*" {
		parsed.MatchAll = true
		parsed.Type = QueryMatchAll
		return parsed
	}

	tokens := strings.Fields(trimmed)
	negateNext := false
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		// Boolean operators are uppercase and word-bounded.
		switch token {
		case "AND":
			// conjunction is the default
			continue
		case "OR":
			parsed.ORGroups = true
			continue
		case "NOT":
			if i == len(tokens)-1 {
				parsed.Warnings = append(parsed.Warnings, "dangling NOT operator ignored")
				continue
			}
			negateNext = true
			continue
		}

		if negateNext {
			parsed.Excluded = append(parsed.Excluded, strings.ToLower(token))
			negateNext = false
			continue
		}

		if field, value, ok := splitQualifier(token); ok {
			if recognizedFields[field] {
				parsed.FieldTerms = append(parsed.FieldTerms, FieldTerm{Field: field, Value: value})
				continue
			}
			parsed.Warnings = append(parsed.Warnings,
				"unrecognized field qualifier "+field+", treated as text")
			token = value
		}

		if strings.ContainsAny(token, "*?") {
			parsed.HasWildcard = true
		}
		parsed.FreeTerms = append(parsed.FreeTerms, token)
	}

	parsed.Type = classify(parsed, tokens)
	return parsed
}

func splitQualifier(token string) (field, value string, ok bool) {
	idx := strings.Index(token, ":")
	if idx <= 0 || idx == len(token)-1 {
		return "", "", false
	}
	return strings.ToLower(token[:idx]), token[idx+1:], true
}

// classify assigns the query type used by downstream heuristics.
func classify(parsed *ParsedQuery, tokens []string) string {
	switch {
	case len(parsed.FieldTerms) > 0:
		return QueryField
	case parsed.ORGroups || len(parsed.Excluded) > 0:
		return QueryBoolean
	case len(tokens) >= 4:
		return QueryNatural
	default:
		return QuerySimple
	}
}

// HasOperators reports whether the query used any explicit operator; the
// fuzzy fallback only engages for plain queries.
func (p *ParsedQuery) HasOperators() bool {
	return p.ORGroups || len(p.Excluded) > 0 || len(p.FieldTerms) > 0 ||
		p.HasWildcard || p.MatchAll
}
