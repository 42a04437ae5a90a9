// Package index maintains the keyword-weighted inverted index the MCP
// search tool reads. It is a separate artifact from the in-database FTS
// tables: the field surface and relevance weights differ, and rebuilds are
// committed by an atomic generation-directory swap.
package index

import (
	"regexp"
	"sort"
	"strings"

	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/spec"
)

// Index field names. Free-text fields are analyzed with the porter
// analyzer, identifier fields with the simple analyzer, and filter fields
// with the exact-match keyword analyzer.
const (
	FieldEndpointPath          = "endpoint_path"
	FieldPathSegments          = "path_segments"
	FieldResourceName          = "resource_name"
	FieldSummary               = "operation_summary"
	FieldDescription           = "operation_description"
	FieldOperationID           = "operation_id"
	FieldParameterNames        = "parameter_names"
	FieldParameterDescriptions = "parameter_descriptions"
	FieldKeywords              = "keywords"
	FieldTags                  = "tags"
	FieldSearchableText        = "searchable_text"

	FieldMethod             = "method"
	FieldOperationType      = "operation_type"
	FieldParameterTypes     = "parameter_types"
	FieldRequiredParameters = "required_parameters"
	FieldOptionalParameters = "optional_parameters"
	FieldStatusCodes        = "status_codes"
	FieldContentTypes       = "content_types"
	FieldSecuritySchemes    = "security_schemes"
	FieldSecurityScopes     = "security_scopes"
	FieldDeprecated         = "deprecated"
	FieldHasRequestBody     = "has_request_body"
	FieldHasExamples        = "has_examples"
)

// Operation types assigned to every search document.
const (
	OpCreate = "create"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
	OpSearch = "search"
	OpUpload = "upload"
	OpAction = "action"
)

// SearchDocument is the flat per-endpoint record registered in the weighted
// index. Every field is a pure function of the normalized endpoint, so a
// rebuild from the relational store reproduces identical documents.
type SearchDocument struct {
	EndpointID string `json:"endpoint_id"`

	EndpointPath          string   `json:"endpoint_path"`
	PathSegments          []string `json:"path_segments"`
	ResourceName          string   `json:"resource_name"`
	Summary               string   `json:"operation_summary"`
	Description           string   `json:"operation_description"`
	OperationID           string   `json:"operation_id"`
	ParameterNames        []string `json:"parameter_names"`
	ParameterDescriptions []string `json:"parameter_descriptions"`
	Keywords              []string `json:"keywords"`
	Tags                  []string `json:"tags"`
	SearchableText        string   `json:"searchable_text"`

	Method             string   `json:"method"`
	OperationType      string   `json:"operation_type"`
	ParameterTypes     []string `json:"parameter_types"`
	RequiredParameters []string `json:"required_parameters"`
	OptionalParameters []string `json:"optional_parameters"`
	StatusCodes        []string `json:"status_codes"`
	ContentTypes       []string `json:"content_types"`
	SecuritySchemes    []string `json:"security_schemes"`
	SecurityScopes     []string `json:"security_scopes"`
	Deprecated         bool     `json:"deprecated"`
	HasRequestBody     bool     `json:"has_request_body"`
	HasExamples        bool     `json:"has_examples"`

	ParameterCount int `json:"parameter_count"`
	ResponseCount  int `json:"response_count"`
}

// BleveType routes the document to the endpoint mapping.
func (d *SearchDocument) BleveType() string { return "endpoint" }

var versionPrefix = regexp.MustCompile(`^v[1-9][0-9]*$`)

// BuildDocument derives the search document for one endpoint.
func BuildDocument(e *spec.Endpoint) *SearchDocument {
	doc := &SearchDocument{
		EndpointID:     e.ID,
		EndpointPath:   e.Path,
		PathSegments:   pathSegments(e.Path),
		ResourceName:   category.FirstMeaningfulSegment(e.Path),
		Summary:        e.Summary,
		Description:    e.Description,
		OperationID:    e.OperationID,
		Tags:           e.Tags,
		SearchableText: e.SearchableText,
		Method:         strings.ToUpper(e.Method),
		StatusCodes:    e.ResponseCodes,
		ContentTypes:   e.ContentTypes,
		Deprecated:     e.Deprecated,
		HasRequestBody: e.RequestBody != nil,
		ParameterCount: len(e.Parameters),
		ResponseCount:  len(e.Responses),
	}

	for _, p := range e.Parameters {
		doc.ParameterNames = append(doc.ParameterNames, p.Name)
		if p.Description != "" {
			doc.ParameterDescriptions = append(doc.ParameterDescriptions, p.Description)
		}
		doc.ParameterTypes = append(doc.ParameterTypes, parameterType(p))
		if p.Required {
			doc.RequiredParameters = append(doc.RequiredParameters, p.Name)
		} else {
			doc.OptionalParameters = append(doc.OptionalParameters, p.Name)
		}
		if p.Example != nil {
			doc.HasExamples = true
		}
	}

	doc.SecuritySchemes = e.SecurityUsed
	doc.SecurityScopes = securityScopes(e.Security)
	doc.OperationType = ClassifyOperation(e)
	doc.Keywords = extractKeywords(doc)

	if !doc.HasExamples {
		doc.HasExamples = endpointHasExamples(e)
	}
	return doc
}

// pathSegments explodes the path into ordered tokens, dropping empty
// segments, api/version prefixes, and template braces.
func pathSegments(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		segment = strings.Trim(segment, "{}")
		if segment == "" || segment == "api" {
			continue
		}
		if versionPrefix.MatchString(strings.ToLower(segment)) {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

func parameterType(p *spec.Parameter) string {
	if p.Schema == nil {
		return "string"
	}
	if p.Schema.IsRef() {
		return "object"
	}
	if p.Schema.Inline != nil && p.Schema.Inline.Type != "" {
		return p.Schema.Inline.Type
	}
	return "string"
}

func securityScopes(reqs []spec.SecurityRequirement) []string {
	set := make(map[string]bool)
	for _, req := range reqs {
		for _, scopes := range req {
			for _, scope := range scopes {
				set[scope] = true
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for scope := range set {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// Operation-type keyword lists. Summary and operation-id tokens are checked
// against these before falling back to method and path shape.
var (
	createWords = []string{"create", "add", "new", "insert", "register"}
	updateWords = []string{"update", "edit", "modify", "patch", "set"}
	deleteWords = []string{"delete", "remove", "destroy"}
	listWords   = []string{"list", "index", "all"}
	searchWords = []string{"search", "query", "find"}
	uploadWords = []string{"upload", "import", "attach"}
)

// ClassifyOperation assigns the CRUD/upload/action operation type from the
// operation text, the HTTP method, and the path shape.
func ClassifyOperation(e *spec.Endpoint) string {
	// tokenSet splits camel humps and lowercases each token itself.
	tokens := tokenSet(e.OperationID + " " + e.Summary)

	hasMultipart := false
	if e.RequestBody != nil {
		for contentType := range e.RequestBody.Content {
			if strings.HasPrefix(contentType, "multipart/") {
				hasMultipart = true
			}
		}
	}
	if hasMultipart || matchesAny(tokens, uploadWords) {
		return OpUpload
	}
	if matchesAny(tokens, searchWords) {
		return OpSearch
	}

	method := strings.ToUpper(e.Method)
	hasPathParam := strings.Contains(e.Path, "{")

	switch method {
	case "DELETE":
		return OpDelete
	case "PUT", "PATCH":
		return OpUpdate
	case "POST":
		if matchesAny(tokens, updateWords) {
			return OpUpdate
		}
		if matchesAny(tokens, deleteWords) {
			return OpDelete
		}
		if matchesAny(tokens, createWords) || !hasPathParam {
			return OpCreate
		}
		return OpAction
	case "GET", "HEAD":
		if matchesAny(tokens, listWords) {
			return OpList
		}
		if hasPathParam {
			return OpRead
		}
		return OpList
	default:
		return OpAction
	}
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	token := strings.Builder{}
	flush := func() {
		if token.Len() > 0 {
			set[strings.ToLower(token.String())] = true
			token.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			token.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			// camel hump starts a new token
			flush()
			token.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return set
}

func matchesAny(tokens map[string]bool, words []string) bool {
	for _, word := range words {
		if tokens[word] {
			return true
		}
	}
	return false
}

// extractKeywords gathers the distinctive identifier tokens of the document:
// path segments, resource name, tag tokens, and operation-id tokens.
func extractKeywords(doc *SearchDocument) []string {
	set := make(map[string]bool)
	add := func(values ...string) {
		for _, value := range values {
			for token := range tokenSet(value) {
				if len(token) > 2 {
					set[token] = true
				}
			}
		}
	}
	add(doc.PathSegments...)
	add(doc.ResourceName, doc.OperationID)
	add(doc.Tags...)

	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for token := range set {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

func endpointHasExamples(e *spec.Endpoint) bool {
	if e.RequestBody != nil {
		for _, media := range e.RequestBody.Content {
			if media.Example != nil {
				return true
			}
		}
	}
	for _, resp := range e.Responses {
		for _, media := range resp.Content {
			if media.Example != nil {
				return true
			}
		}
	}
	return false
}
