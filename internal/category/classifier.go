// Package category assigns every endpoint a category and category group
// derived from tags, x-tagGroups, operation ids, and path heuristics, and
// builds the category catalog. Categorization is never fatal.
package category

import (
	"regexp"
	"strings"

	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/spec"
)

// Uncategorized is the fallback category key.
const Uncategorized = "uncategorized"

// Engine classifies endpoints.
type Engine struct {
	logger logging.Logger
}

// NewEngine creates a categorization engine.
func NewEngine(logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.WithComponent("category")
	}
	return &Engine{logger: logger}
}

// operationVerbs are operationId tokens that name an action rather than a
// resource; the resource-noun heuristic skips them.
var operationVerbs = map[string]bool{
	"get": true, "list": true, "create": true, "add": true, "new": true,
	"update": true, "edit": true, "modify": true, "patch": true, "set": true,
	"delete": true, "remove": true, "destroy": true, "put": true,
	"post": true, "fetch": true, "retrieve": true, "find": true,
	"search": true, "query": true, "index": true, "all": true,
	"upload": true, "download": true, "import": true, "export": true,
	"by": true, "for": true, "with": true, "and": true, "the": true,
}

// versionSegment matches path segments that only carry versioning.
var versionSegment = regexp.MustCompile(`^v[1-9][0-9]*$`)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a raw category name into its canonical lowercase URL-safe
// key. Runs of invalid characters collapse into single hyphens.
func Slug(raw string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "-")
	return strings.Trim(s, "-")
}

// Classify annotates every endpoint of the API with category metadata and
// returns the ordered catalog.
func (e *Engine) Classify(api *spec.NormalizedAPI) *Catalog {
	tagDisplay := make(map[string]string, len(api.Tags))
	for _, tag := range api.Tags {
		tagDisplay[Slug(tag.Name)] = tag.Name
	}

	groupByTag := make(map[string]string)
	for _, group := range api.TagGroups {
		for _, tag := range group.Tags {
			groupByTag[Slug(tag)] = group.Name
		}
	}
	hasGroups := len(api.TagGroups) > 0

	builder := newCatalogBuilder()
	for _, endpoint := range api.Endpoints {
		key, display := e.classifyEndpoint(endpoint, tagDisplay)

		group := ""
		if g, ok := groupByTag[key]; ok {
			group = g
		} else if hasGroups {
			group = "Other"
		}

		endpoint.Category = key
		endpoint.CategoryDisplay = display
		endpoint.CategoryGroup = group
		builder.add(endpoint)
	}

	return builder.build()
}

// classifyEndpoint applies the classification rules in order; the first
// match wins.
func (e *Engine) classifyEndpoint(endpoint *spec.Endpoint, tagDisplay map[string]string) (key, display string) {
	// Rule 1: first tag, in original order. The root tag definition supplies
	// the display name when it exists.
	if len(endpoint.Tags) > 0 {
		tag := endpoint.Tags[0]
		if key := Slug(tag); key != "" {
			if defined, ok := tagDisplay[key]; ok {
				return key, defined
			}
			return key, tag
		}
	}

	// Rule 2: resource noun from the operation id.
	if noun := resourceNoun(endpoint.OperationID); noun != "" {
		return Slug(noun), titleCase(noun)
	}

	// Rule 3: first non-versioning path segment.
	if segment := firstMeaningfulSegment(endpoint.Path); segment != "" {
		return Slug(segment), titleCase(segment)
	}

	e.logger.Debug("endpoint has no tags, operation id, or meaningful path",
		"endpoint", endpoint.ID)
	return Uncategorized, "Uncategorized"
}

// resourceNoun splits the operation id on hyphens, underscores, and camel
// humps, and returns the first token longer than two characters that is
// not an operation verb.
func resourceNoun(operationID string) string {
	for _, token := range splitIdentifier(operationID) {
		lower := strings.ToLower(token)
		if len(lower) > 2 && !operationVerbs[lower] {
			return lower
		}
	}
	return ""
}

// splitIdentifier breaks a mixed-delimiter identifier into tokens.
func splitIdentifier(s string) []string {
	s = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(s)

	// break camel humps: listUsers -> list Users
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return strings.Fields(b.String())
}

// FirstMeaningfulSegment returns the first path segment that is not an api
// prefix, a version marker, a single-letter token, or a template token.
func FirstMeaningfulSegment(path string) string {
	return firstMeaningfulSegment(path)
}

func firstMeaningfulSegment(path string) string {
	for _, segment := range strings.Split(path, "/") {
		segment = strings.TrimSpace(segment)
		if segment == "" || segment == "api" || len(segment) == 1 {
			continue
		}
		if versionSegment.MatchString(strings.ToLower(segment)) {
			continue
		}
		if strings.HasPrefix(segment, "{") {
			continue
		}
		return segment
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
