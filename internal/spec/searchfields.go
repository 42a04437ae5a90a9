package spec

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips diacritics so the full-text tokenizers see plain ASCII.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldASCII lowercases and removes diacritical marks from s.
func FoldASCII(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// deriveSearchFields fills the derived searchable fields of every endpoint
// and schema. The fields are pure functions of the normalized entity, so a
// rebuild from the store reproduces them exactly.
func deriveSearchFields(api *NormalizedAPI) {
	for _, endpoint := range api.Endpoints {
		deriveEndpointFields(endpoint)
	}
	for _, schema := range api.Schemas {
		deriveSchemaFields(schema)
	}
}

func deriveEndpointFields(e *Endpoint) {
	var names []string
	var descriptions []string
	for _, p := range e.Parameters {
		names = append(names, p.Name)
		if p.Description != "" {
			descriptions = append(descriptions, p.Description)
		}
	}
	e.ParameterNames = names

	codes := make([]string, 0, len(e.Responses))
	contentTypes := make(map[string]bool)
	var responseDescriptions []string
	for code, resp := range e.Responses {
		codes = append(codes, code)
		if resp.Description != "" {
			responseDescriptions = append(responseDescriptions, resp.Description)
		}
		for contentType := range resp.Content {
			contentTypes[contentType] = true
		}
	}
	sort.Strings(codes)
	e.ResponseCodes = codes

	if e.RequestBody != nil {
		for contentType := range e.RequestBody.Content {
			contentTypes[contentType] = true
		}
	}
	e.ContentTypes = sortedKeys(contentTypes)

	parts := []string{
		e.Path,
		strings.ToLower(e.Method),
		e.OperationID,
		e.Summary,
		e.Description,
		strings.Join(e.Tags, " "),
		strings.Join(names, " "),
		strings.Join(descriptions, " "),
		strings.Join(responseDescriptions, " "),
	}
	e.SearchableText = joinSearchable(parts)
}

func deriveSchemaFields(s *Schema) {
	props := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		props = append(props, name)
	}
	sort.Strings(props)
	s.PropertyNames = props

	parts := []string{
		s.Name,
		s.Title,
		s.Type,
		s.Format,
		s.Description,
		strings.Join(props, " "),
	}
	s.SearchableText = joinSearchable(parts)
}

func joinSearchable(parts []string) string {
	var nonEmpty []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return FoldASCII(strings.Join(strings.Fields(strings.Join(nonEmpty, " ")), " "))
}
