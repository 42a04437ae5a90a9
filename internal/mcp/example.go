package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"openapi-mcp-server/internal/spec"
)

const defaultBaseURL = "https://api.example.com"

// Example is the generated request example returned by getExample.
type Example struct {
	EndpointID  string   `json:"endpoint_id"`
	Language    string   `json:"language"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Code        string   `json:"example"`
	Description string   `json:"description,omitempty"`
	AuthSchemes []string `json:"auth_schemes,omitempty"`
	Notes       []string `json:"notes,omitempty"`
}

// requestShape is the language-independent view of one example request.
type requestShape struct {
	method      string
	url         string
	headers     [][2]string
	body        interface{}
	hasBody     bool
	contentType string
}

// buildExample assembles the request shape from the stored endpoint and
// renders it in the requested language.
func (s *APIServer) buildExample(ctx context.Context, endpoint *spec.Endpoint, language string, includeAuth bool) (*Example, error) {
	shape := requestShape{method: strings.ToUpper(endpoint.Method)}
	example := &Example{
		EndpointID:  endpoint.ID,
		Language:    language,
		Method:      shape.method,
		Path:        endpoint.Path,
		Description: endpoint.Summary,
	}

	shape.url = s.baseURL(ctx) + fillPathParameters(endpoint)
	if query := queryString(endpoint); query != "" {
		shape.url += "?" + query
	}

	if endpoint.RequestBody != nil {
		contentType, media := preferredMedia(endpoint.RequestBody.Content)
		shape.contentType = contentType
		shape.headers = append(shape.headers, [2]string{"Content-Type", contentType})
		shape.body = s.sampleBody(ctx, media)
		shape.hasBody = shape.body != nil
	}

	for _, param := range endpoint.Parameters {
		if param.In == spec.InHeader {
			shape.headers = append(shape.headers, [2]string{param.Name, sampleHeaderValue(param)})
		}
	}

	if includeAuth {
		headers, notes := s.authScaffolding(ctx, endpoint)
		shape.headers = append(shape.headers, headers...)
		example.AuthSchemes = endpoint.SecurityUsed
		example.Notes = append(example.Notes, notes...)
	}
	if endpoint.Deprecated {
		example.Notes = append(example.Notes, "this endpoint is deprecated")
	}

	switch language {
	case "curl":
		example.Code = renderCurl(shape)
	case "javascript":
		example.Code = renderJavaScript(shape, false)
	case "typescript":
		example.Code = renderJavaScript(shape, true)
	case "python":
		example.Code = renderPython(shape)
	}
	return example, nil
}

// baseURL picks the first documented server URL, falling back to a
// placeholder host.
func (s *APIServer) baseURL(ctx context.Context) string {
	info, err := s.store.GetAPIInfo(ctx)
	if err != nil || len(info.Servers) == 0 || info.Servers[0].URL == "" {
		return defaultBaseURL
	}
	return strings.TrimSuffix(info.Servers[0].URL, "/")
}

// fillPathParameters substitutes sample values for path template variables.
func fillPathParameters(endpoint *spec.Endpoint) string {
	path := endpoint.Path
	for _, param := range endpoint.Parameters {
		if param.In != spec.InPath {
			continue
		}
		path = strings.ReplaceAll(path, "{"+param.Name+"}", sampleScalarText(param))
	}
	return path
}

// queryString renders the required query parameters, plus common optional
// ones when nothing is required.
func queryString(endpoint *spec.Endpoint) string {
	var pairs []string
	for _, param := range endpoint.Parameters {
		if param.In == spec.InQuery && param.Required {
			pairs = append(pairs, param.Name+"="+sampleScalarText(param))
		}
	}
	return strings.Join(pairs, "&")
}

func sampleScalarText(param *spec.Parameter) string {
	if param.Example != nil {
		return fmt.Sprintf("%v", param.Example)
	}
	if param.Schema != nil && param.Schema.Inline != nil {
		inline := param.Schema.Inline
		if len(inline.Enum) > 0 {
			return fmt.Sprintf("%v", inline.Enum[0])
		}
		switch inline.Type {
		case "integer", "number":
			return "1"
		case "boolean":
			return "true"
		}
	}
	return "example-" + param.Name
}

func sampleHeaderValue(param *spec.Parameter) string {
	if param.Example != nil {
		return fmt.Sprintf("%v", param.Example)
	}
	return "<" + param.Name + ">"
}

// preferredMedia picks JSON when available, the first content type otherwise.
func preferredMedia(content map[string]*spec.MediaType) (string, *spec.MediaType) {
	if media, ok := content["application/json"]; ok {
		return "application/json", media
	}
	types := make([]string, 0, len(content))
	for ct := range content {
		types = append(types, ct)
	}
	sort.Strings(types)
	if len(types) == 0 {
		return "application/json", nil
	}
	return types[0], content[types[0]]
}

// sampleBody synthesizes a request body value from the media type's schema,
// preferring a documented example.
func (s *APIServer) sampleBody(ctx context.Context, media *spec.MediaType) interface{} {
	if media == nil {
		return nil
	}
	if media.Example != nil {
		return media.Example
	}
	return s.sampleValue(ctx, media.Schema, map[string]bool{}, 0)
}

const maxSampleDepth = 4

// sampleValue generates a representative value for a schema node. Expansion
// is depth-bounded and cycle-guarded; both cut off to null.
func (s *APIServer) sampleValue(ctx context.Context, node *spec.SchemaNode, seen map[string]bool, depth int) interface{} {
	if node == nil || depth > maxSampleDepth {
		return nil
	}

	schema := node.Inline
	if node.IsRef() {
		if seen[node.Ref] {
			return nil
		}
		resolved, err := s.store.GetSchema(ctx, node.Ref)
		if err != nil {
			return nil
		}
		seen[node.Ref] = true
		defer delete(seen, node.Ref)
		schema = resolved
	}
	if schema == nil {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}
	if schema.Default != nil {
		return schema.Default
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}
	if len(schema.AllOf) > 0 {
		merged := make(map[string]interface{})
		for _, branch := range schema.AllOf {
			if part, ok := s.sampleValue(ctx, branch, seen, depth+1).(map[string]interface{}); ok {
				for k, v := range part {
					merged[k] = v
				}
			}
		}
		return merged
	}
	if len(schema.OneOf) > 0 {
		return s.sampleValue(ctx, schema.OneOf[0], seen, depth+1)
	}
	if len(schema.AnyOf) > 0 {
		return s.sampleValue(ctx, schema.AnyOf[0], seen, depth+1)
	}

	switch schema.Type {
	case "object", "":
		if len(schema.Properties) == 0 {
			if schema.Type == "object" {
				return map[string]interface{}{}
			}
			return "string"
		}
		obj := make(map[string]interface{}, len(schema.Properties))
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			prop := schema.Properties[name]
			if prop != nil && prop.Inline != nil && prop.Inline.ReadOnly {
				continue
			}
			obj[name] = s.sampleValue(ctx, prop, seen, depth+1)
		}
		return obj
	case "array":
		item := s.sampleValue(ctx, schema.Items, seen, depth+1)
		if item == nil {
			return []interface{}{}
		}
		return []interface{}{item}
	case "integer":
		return 1
	case "number":
		return 1.0
	case "boolean":
		return true
	default:
		return sampleString(schema)
	}
}

func sampleString(schema *spec.Schema) string {
	switch schema.Format {
	case "date":
		return "2024-01-15"
	case "date-time":
		return "2024-01-15T09:30:00Z"
	case "email":
		return "user@example.com"
	case "uuid":
		return "00000000-0000-0000-0000-000000000000"
	case "uri", "url":
		return "https://example.com"
	case "binary", "byte":
		return "<binary data>"
	default:
		return "string"
	}
}

// authScaffolding derives placeholder auth headers from the endpoint's
// security schemes.
func (s *APIServer) authScaffolding(ctx context.Context, endpoint *spec.Endpoint) ([][2]string, []string) {
	var headers [][2]string
	var notes []string
	for _, name := range endpoint.SecurityUsed {
		scheme, err := s.store.GetSecurityScheme(ctx, name)
		if err != nil {
			continue
		}
		switch scheme.Type {
		case spec.SecurityHTTP:
			if strings.EqualFold(scheme.Scheme, "bearer") {
				headers = append(headers, [2]string{"Authorization", "Bearer <your-token>"})
			} else {
				headers = append(headers, [2]string{"Authorization", "Basic <base64-credentials>"})
			}
		case spec.SecurityAPIKey:
			switch scheme.In {
			case spec.InHeader:
				headers = append(headers, [2]string{scheme.ParamName, "<your-api-key>"})
			case spec.InQuery:
				notes = append(notes, fmt.Sprintf("append %s=<your-api-key> to the query string", scheme.ParamName))
			default:
				notes = append(notes, fmt.Sprintf("send the %s cookie with your API key", scheme.ParamName))
			}
		case spec.SecurityOAuth2, spec.SecurityOpenIDConnect:
			headers = append(headers, [2]string{"Authorization", "Bearer <oauth2-access-token>"})
			notes = append(notes, fmt.Sprintf("obtain an access token via the %s scheme first", name))
		}
	}
	return headers, notes
}

// Renderers

func renderCurl(r requestShape) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s '%s'", r.method, r.url)
	for _, h := range r.headers {
		fmt.Fprintf(&b, " \\\n  -H '%s: %s'", h[0], h[1])
	}
	if r.hasBody {
		fmt.Fprintf(&b, " \\\n  -d '%s'", marshalIndent(r.body, ""))
	}
	return b.String()
}

func renderJavaScript(r requestShape, typed bool) string {
	var b strings.Builder
	if typed {
		b.WriteString("const response: Response = await fetch(")
	} else {
		b.WriteString("const response = await fetch(")
	}
	fmt.Fprintf(&b, "'%s', {\n  method: '%s',\n", r.url, r.method)
	if len(r.headers) > 0 {
		b.WriteString("  headers: {\n")
		for _, h := range r.headers {
			fmt.Fprintf(&b, "    '%s': '%s',\n", h[0], h[1])
		}
		b.WriteString("  },\n")
	}
	if r.hasBody {
		fmt.Fprintf(&b, "  body: JSON.stringify(%s),\n", marshalIndent(r.body, "  "))
	}
	b.WriteString("});\nconst data = await response.json();")
	return b.String()
}

func renderPython(r requestShape) string {
	var b strings.Builder
	b.WriteString("import requests\n\n")
	if len(r.headers) > 0 {
		b.WriteString("headers = {\n")
		for _, h := range r.headers {
			fmt.Fprintf(&b, "    \"%s\": \"%s\",\n", h[0], h[1])
		}
		b.WriteString("}\n")
	}
	fmt.Fprintf(&b, "response = requests.%s(\n    \"%s\",\n", strings.ToLower(r.method), r.url)
	if len(r.headers) > 0 {
		b.WriteString("    headers=headers,\n")
	}
	if r.hasBody {
		fmt.Fprintf(&b, "    json=%s,\n", marshalIndent(r.body, "    "))
	}
	b.WriteString(")\nresponse.raise_for_status()\nprint(response.json())")
	return b.String()
}

// marshalIndent renders the body as indented JSON with continuation lines
// aligned to the surrounding snippet.
func marshalIndent(v interface{}, prefix string) string {
	data, err := json.MarshalIndent(v, prefix, "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
