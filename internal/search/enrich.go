package search

import (
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/search"

	"openapi-mcp-server/internal/index"
)

// Complexity levels.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// enrich turns one raw hit into an enriched result using the document's
// stored fields.
func enrich(hit *search.DocumentMatch) *Result {
	result := &Result{
		EndpointID:    hit.ID,
		Path:          fieldString(hit, index.FieldEndpointPath),
		Method:        fieldString(hit, index.FieldMethod),
		Summary:       fieldString(hit, index.FieldSummary),
		Description:   fieldString(hit, index.FieldDescription),
		OperationID:   fieldString(hit, index.FieldOperationID),
		Tags:          fieldStrings(hit, index.FieldTags),
		Score:         hit.Score,
		Deprecated:    fieldBool(hit, index.FieldDeprecated),
		ResourceGroup: fieldString(hit, index.FieldResourceName),
		OperationType: fieldString(hit, index.FieldOperationType),
	}

	required := fieldStrings(hit, index.FieldRequiredParameters)
	optional := fieldStrings(hit, index.FieldOptionalParameters)
	types := fieldStrings(hit, index.FieldParameterTypes)
	contentTypes := fieldStrings(hit, index.FieldContentTypes)

	histogram := make(map[string]int)
	hasComplex := false
	for _, t := range types {
		histogram[t]++
		if t == "object" || t == "array" {
			hasComplex = true
		}
	}
	hasUpload := false
	for _, ct := range contentTypes {
		if strings.HasPrefix(ct, "multipart/") {
			hasUpload = true
		}
	}

	names := fieldStrings(hit, index.FieldParameterNames)
	result.Parameters = ParameterSummary{
		Total:           len(names),
		Required:        len(required),
		Optional:        len(optional),
		HasFileUpload:   hasUpload,
		HasComplexTypes: hasComplex,
		CommonNames:     commonNames(names),
	}
	if len(histogram) > 0 {
		result.Parameters.TypeHistogram = histogram
	}

	schemes := fieldStrings(hit, index.FieldSecuritySchemes)
	result.Auth = AuthSummary{
		Required: len(schemes) > 0,
		Schemes:  schemes,
		Scopes:   fieldStrings(hit, index.FieldSecurityScopes),
	}

	codes := fieldStrings(hit, index.FieldStatusCodes)
	result.Responses = ResponseSummary{
		StatusCodes:  codes,
		ContentTypes: contentTypes,
		Count:        int(fieldNumber(hit, "response_count")),
	}
	result.ParameterCount = result.Parameters.Total
	result.ResponseCount = result.Responses.Count

	result.Complexity = complexityLevel(
		result.Parameters.Total,
		result.Responses.Count,
		fieldBool(hit, index.FieldHasRequestBody),
		hasComplex,
	)
	return result
}

// complexityLevel scores parameter count, response surface, request body
// presence, and composite parameter types into three buckets.
func complexityLevel(paramCount, responseCount int, hasBody, hasComplexTypes bool) string {
	score := paramCount + responseCount
	if hasBody {
		score += 2
	}
	if hasComplexTypes {
		score += 2
	}
	switch {
	case score <= 3:
		return ComplexitySimple
	case score <= 7:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// commonNames returns the well-known parameter names present, in a stable
// order.
func commonNames(names []string) []string {
	known := map[string]bool{
		"id": true, "limit": true, "offset": true, "page": true,
		"sort": true, "filter": true, "q": true, "query": true,
		"fields": true, "expand": true,
	}
	var out []string
	for _, name := range names {
		if known[strings.ToLower(name)] {
			out = append(out, strings.ToLower(name))
		}
	}
	sort.Strings(out)
	return out
}

func fieldString(hit *search.DocumentMatch, field string) string {
	switch v := hit.Fields[field].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func fieldStrings(hit *search.DocumentMatch, field string) []string {
	switch v := hit.Fields[field].(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fieldBool(hit *search.DocumentMatch, field string) bool {
	switch v := hit.Fields[field].(type) {
	case bool:
		return v
	case []interface{}:
		if len(v) > 0 {
			if b, ok := v[0].(bool); ok {
				return b
			}
		}
	}
	return false
}

func fieldNumber(hit *search.DocumentMatch, field string) float64 {
	switch v := hit.Fields[field].(type) {
	case float64:
		return v
	case []interface{}:
		if len(v) > 0 {
			if f, ok := v[0].(float64); ok {
				return f
			}
		}
	}
	return 0
}
