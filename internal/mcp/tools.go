package mcp

import (
	"context"
	"strings"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/spec"
)

func (s *APIServer) handleSearchEndpoints(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, ok := params["query"].(string)
	if !ok {
		return nil, apierr.NewInput("query parameter is required and must be a string", nil)
	}

	req := &search.Request{Query: query, Page: 1, PerPage: 10}
	if method, ok := params["method"].(string); ok && method != "" {
		req.Filters.Methods = []string{strings.ToUpper(method)}
	}
	if limit, ok := numberParam(params, "limit"); ok {
		if limit < 1 || limit > search.MaxPerPage {
			return nil, apierr.NewInput("limit must be between 1 and 100", nil)
		}
		req.PerPage = limit
	}

	return s.engine.Search(ctx, req)
}

func (s *APIServer) handleGetSchema(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, ok := params["schema_name"].(string)
	if !ok || name == "" {
		return nil, apierr.NewInput("schema_name parameter is required and must be a non-empty string", nil)
	}
	includeExamples := boolParam(params, "include_examples", true)
	resolveRefs := boolParam(params, "resolve_refs", true)

	schema, err := s.store.GetSchema(ctx, name)
	if err != nil {
		if apierr.IsCode(err, apierr.CodeNotFound) {
			notFound := apierr.NewNotFound("schema", name)
			if similar, _ := s.store.SimilarSchemaNames(ctx, name, 5); len(similar) > 0 {
				notFound = notFound.WithDetail("similar_schemas", similar)
			}
			return nil, notFound
		}
		return nil, err
	}

	rendered := s.renderSchema(ctx, schema, renderOptions{
		resolveRefs:     resolveRefs,
		includeExamples: includeExamples,
	}, map[string]bool{name: true})

	out := map[string]interface{}{
		"name":             schema.Name,
		"type":             schema.Type,
		"definition":       rendered,
		"description":      schema.Description,
		"required_fields":  schema.Required,
		"properties_count": len(schema.Properties),
		"dependencies":     schema.Dependencies,
		"reference_count":  schema.ReferenceCount,
		"cycles":           schema.Cycles,
	}
	if includeExamples && schema.Example != nil {
		out["examples"] = []interface{}{schema.Example}
	}
	return out, nil
}

type renderOptions struct {
	resolveRefs     bool
	includeExamples bool
}

// renderSchema converts a stored schema into the wire representation,
// expanding name handles when requested. seen carries the names on the
// current expansion path so cycles terminate with a marker node.
func (s *APIServer) renderSchema(ctx context.Context, schema *spec.Schema, opts renderOptions, seen map[string]bool) map[string]interface{} {
	out := make(map[string]interface{})
	put := func(key string, value interface{}) {
		switch v := value.(type) {
		case string:
			if v != "" {
				out[key] = v
			}
		case bool:
			if v {
				out[key] = v
			}
		default:
			if value != nil {
				out[key] = value
			}
		}
	}

	put("type", schema.Type)
	put("format", schema.Format)
	put("title", schema.Title)
	put("description", schema.Description)
	put("nullable", schema.Nullable)
	put("pattern", schema.Pattern)
	put("deprecated", schema.Deprecated)
	put("read_only", schema.ReadOnly)
	put("write_only", schema.WriteOnly)
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	if len(schema.Enum) > 0 {
		out["enum"] = schema.Enum
	}
	if schema.Minimum != nil {
		out["minimum"] = *schema.Minimum
	}
	if schema.Maximum != nil {
		out["maximum"] = *schema.Maximum
	}
	if schema.Default != nil {
		out["default"] = schema.Default
	}
	if opts.includeExamples && schema.Example != nil {
		out["example"] = schema.Example
	}

	if len(schema.Properties) > 0 {
		props := make(map[string]interface{}, len(schema.Properties))
		for propName, node := range schema.Properties {
			props[propName] = s.renderNode(ctx, node, opts, seen)
		}
		out["properties"] = props
	}
	if schema.Items != nil {
		out["items"] = s.renderNode(ctx, schema.Items, opts, seen)
	}
	for key, nodes := range map[string][]*spec.SchemaNode{
		"allOf": schema.AllOf, "oneOf": schema.OneOf, "anyOf": schema.AnyOf,
	} {
		if len(nodes) == 0 {
			continue
		}
		rendered := make([]interface{}, 0, len(nodes))
		for _, node := range nodes {
			rendered = append(rendered, s.renderNode(ctx, node, opts, seen))
		}
		out[key] = rendered
	}
	if schema.Discriminator != nil {
		out["discriminator"] = schema.Discriminator
	}
	return out
}

func (s *APIServer) renderNode(ctx context.Context, node *spec.SchemaNode, opts renderOptions, seen map[string]bool) interface{} {
	if node == nil {
		return nil
	}
	if node.IsRef() {
		if !opts.resolveRefs {
			return map[string]interface{}{"$ref": node.Ref}
		}
		if seen[node.Ref] {
			return map[string]interface{}{"$ref": node.Ref, "circular": true}
		}
		target, err := s.store.GetSchema(ctx, node.Ref)
		if err != nil {
			return map[string]interface{}{"$ref": node.Ref}
		}
		seen[node.Ref] = true
		rendered := s.renderSchema(ctx, target, opts, seen)
		delete(seen, node.Ref)
		return rendered
	}
	if node.Inline != nil {
		return s.renderSchema(ctx, node.Inline, opts, seen)
	}
	return nil
}

func (s *APIServer) handleGetExample(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	endpointID, ok := params["endpoint_id"].(string)
	if !ok || endpointID == "" {
		return nil, apierr.NewInput("endpoint_id parameter is required, e.g. 'GET:/pets/{petId}'", nil)
	}
	language := "curl"
	if lang, ok := params["language"].(string); ok && lang != "" {
		language = strings.ToLower(lang)
	}
	if !validLanguages[language] {
		return nil, apierr.NewInput("language must be one of curl, javascript, python, typescript", nil)
	}
	includeAuth := boolParam(params, "include_auth", true)

	endpoint, err := s.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	example, err := s.buildExample(ctx, endpoint, language, includeAuth)
	if err != nil {
		return nil, err
	}
	return example, nil
}

var validLanguages = map[string]bool{
	"curl": true, "javascript": true, "python": true, "typescript": true,
}

func boolParam(params map[string]interface{}, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

// numberParam accepts both float64 (JSON) and int (direct call) values.
func numberParam(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
