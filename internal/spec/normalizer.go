package spec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"openapi-mcp-server/internal/apierr"
)

// Options controls normalization behavior.
type Options struct {
	// Strict promotes specification invariant violations from warnings to
	// fatal errors.
	Strict bool
}

// Normalize turns a parsed document into the normalized value graph. The
// report carries warnings and counters even on success; reference errors
// are always fatal, invariant errors only in strict mode.
func Normalize(parsed *ParsedDocument, opts Options) (*NormalizedAPI, *Report, error) {
	report := NewReport()
	doc := parsed.Doc

	if doc.Info == nil {
		err := apierr.NewSpecInvariant("document has no info block")
		if opts.Strict {
			return nil, report, err
		}
		report.addWarning(err.Message)
		doc.Info = &openapi3.Info{Title: "untitled", Version: "0.0.0"}
	}

	if opts.Strict && parsed.Dialect != "2.0" {
		if err := doc.Validate(context.Background()); err != nil {
			return nil, report, apierr.New(apierr.CodeSpecInvariant, err.Error())
		}
	}

	api := &NormalizedAPI{
		Title:           doc.Info.Title,
		Version:         doc.Info.Version,
		Dialect:         parsed.Dialect,
		Description:     doc.Info.Description,
		SpecHash:        parsed.Hash,
		SourcePath:      parsed.SourcePath,
		FileSize:        parsed.FileSize,
		Schemas:         make(map[string]*Schema),
		SecuritySchemes: make(map[string]*SecurityScheme),
	}

	if doc.Info.Contact != nil {
		api.Contact = strings.TrimSpace(doc.Info.Contact.Name + " " + doc.Info.Contact.Email)
	}
	if doc.Info.License != nil {
		api.License = doc.Info.License.Name
	}

	for _, server := range doc.Servers {
		s := Server{URL: server.URL, Description: server.Description}
		if len(server.Variables) > 0 {
			s.Variables = make(map[string]string, len(server.Variables))
			for name, v := range server.Variables {
				s.Variables[name] = fmt.Sprintf("%v", v.Default)
			}
		}
		api.Servers = append(api.Servers, s)
	}

	for _, tag := range doc.Tags {
		api.Tags = append(api.Tags, Tag{Name: tag.Name, Description: tag.Description})
	}

	api.Extensions = captureExtensions(doc.Extensions)
	api.TagGroups = parseTagGroups(api.Extensions, report)

	normalizeSchemas(doc, parsed, api, report)
	normalizeSecuritySchemes(doc, api, report)

	if err := extractEndpoints(doc, api, report, opts); err != nil {
		return nil, report, err
	}

	if err := resolveCrossReferences(api, report, opts); err != nil {
		return nil, report, err
	}

	deriveSearchFields(api)

	report.Counters["endpoints"] = len(api.Endpoints)
	report.Counters["schemas"] = len(api.Schemas)
	report.Counters["security_schemes"] = len(api.SecuritySchemes)
	return api, report, nil
}

// captureExtensions keeps every x-* key of a kin extensions map.
func captureExtensions(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		if strings.HasPrefix(k, "x-") {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseTagGroups surfaces the reserved x-tagGroups extension.
func parseTagGroups(extensions map[string]interface{}, report *Report) []TagGroup {
	raw, ok := extensions["x-tagGroups"].([]interface{})
	if !ok {
		return nil
	}
	var groups []TagGroup
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			report.addWarning("x-tagGroups entry is not an object, skipping")
			continue
		}
		group := TagGroup{}
		if name, ok := entry["name"].(string); ok {
			group.Name = name
		}
		if tags, ok := entry["tags"].([]interface{}); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					group.Tags = append(group.Tags, s)
				}
			}
		}
		if group.Name != "" {
			groups = append(groups, group)
		}
	}
	return groups
}

var pathTemplateToken = regexp.MustCompile(`\{([^}]+)\}`)

// extractEndpoints builds one Endpoint per (path, method).
func extractEndpoints(doc *openapi3.T, api *NormalizedAPI, report *Report, opts Options) error {
	if doc.Paths == nil {
		return nil
	}

	paths := make([]string, 0, doc.Paths.Len())
	for path := range doc.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		pathItem := doc.Paths.Map()[path]
		ops := pathItem.Operations()

		methods := make([]string, 0, len(ops))
		for method := range ops {
			methods = append(methods, method)
		}
		sort.Strings(methods)

		for _, method := range methods {
			op := ops[method]
			endpoint, err := buildEndpoint(doc, path, method, pathItem, op, report, opts)
			if err != nil {
				if opts.Strict {
					return err
				}
				report.addError(err.Error())
				continue
			}
			api.Endpoints = append(api.Endpoints, endpoint)
		}
	}
	return nil
}

func buildEndpoint(doc *openapi3.T, path, method string, pathItem *openapi3.PathItem, op *openapi3.Operation, report *Report, opts Options) (*Endpoint, error) {
	endpoint := &Endpoint{
		ID:          method + ":" + path,
		Path:        path,
		Method:      method,
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        op.Tags,
		Deprecated:  op.Deprecated,
		Extensions:  captureExtensions(op.Extensions),
	}

	if endpoint.OperationID == "" {
		endpoint.OperationID = synthOperationID(method, path)
	}

	params, err := mergeParameters(pathItem.Parameters, op.Parameters, endpoint.ID, report, opts)
	if err != nil {
		return nil, err
	}
	endpoint.Parameters = params

	if err := reconcilePathParameters(endpoint, report, opts); err != nil {
		return nil, err
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body := op.RequestBody.Value
		endpoint.RequestBody = &RequestBody{
			Description: body.Description,
			Required:    body.Required,
			Content:     convertContent(body.Content),
		}
	}

	if op.Responses != nil {
		endpoint.Responses = make(map[string]*Response, op.Responses.Len())
		for code, ref := range op.Responses.Map() {
			if ref.Value == nil {
				continue
			}
			resp := &Response{Content: convertContent(ref.Value.Content)}
			if ref.Value.Description != nil {
				resp.Description = *ref.Value.Description
			}
			for header := range ref.Value.Headers {
				resp.Headers = append(resp.Headers, header)
			}
			sort.Strings(resp.Headers)
			endpoint.Responses[code] = resp
		}
	}

	// An explicit empty security list on the operation means "no auth";
	// a nil one inherits the document default.
	if op.Security != nil {
		for _, req := range *op.Security {
			endpoint.Security = append(endpoint.Security, SecurityRequirement(req))
		}
	} else {
		for _, req := range doc.Security {
			endpoint.Security = append(endpoint.Security, SecurityRequirement(req))
		}
	}

	callbackNames := make([]string, 0, len(op.Callbacks))
	for name := range op.Callbacks {
		callbackNames = append(callbackNames, name)
	}
	sort.Strings(callbackNames)
	for _, name := range callbackNames {
		endpoint.Callbacks = append(endpoint.Callbacks, name)
		endpoint.CallbackSchemas = append(endpoint.CallbackSchemas, callbackSchemas(op.Callbacks[name])...)
	}

	return endpoint, nil
}

// callbackSchemas collects the request payload schemas of one callback's
// operations.
func callbackSchemas(ref *openapi3.CallbackRef) []*SchemaNode {
	if ref == nil || ref.Value == nil {
		return nil
	}
	expressions := make([]string, 0, ref.Value.Len())
	for expr := range ref.Value.Map() {
		expressions = append(expressions, expr)
	}
	sort.Strings(expressions)

	var nodes []*SchemaNode
	for _, expr := range expressions {
		item := ref.Value.Map()[expr]
		if item == nil {
			continue
		}
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for method := range ops {
			methods = append(methods, method)
		}
		sort.Strings(methods)
		for _, method := range methods {
			cb := ops[method]
			if cb.RequestBody == nil || cb.RequestBody.Value == nil {
				continue
			}
			for _, media := range cb.RequestBody.Value.Content {
				if node := convertSchemaNode(media.Schema); node != nil {
					nodes = append(nodes, node)
				}
			}
		}
	}
	return nodes
}

// mergeParameters concatenates path-item and operation parameters with
// operation-level shadowing by (name, location).
func mergeParameters(pathParams, opParams openapi3.Parameters, endpointID string, report *Report, opts Options) ([]*Parameter, error) {
	type key struct{ name, in string }
	var order []key
	byKey := make(map[key]*Parameter)

	add := func(ref *openapi3.ParameterRef, shadowing bool) error {
		if ref == nil || ref.Value == nil {
			return nil
		}
		p := ref.Value
		converted := &Parameter{
			Name:        p.Name,
			In:          p.In,
			Required:    p.Required,
			Description: p.Description,
			Schema:      convertSchemaNode(p.Schema),
			Example:     p.Example,
			Deprecated:  p.Deprecated,
			Extensions:  captureExtensions(p.Extensions),
		}
		k := key{p.Name, p.In}
		if existing, ok := byKey[k]; ok {
			if existing.Required != converted.Required {
				msg := fmt.Sprintf("%s: parameter %q (%s) has contradictory required flags, last definition wins", endpointID, p.Name, p.In)
				if opts.Strict {
					return apierr.NewSpecInvariant(msg)
				}
				report.addWarning(msg)
			}
			byKey[k] = converted
			return nil
		}
		order = append(order, k)
		byKey[k] = converted
		return nil
	}

	for _, ref := range pathParams {
		if err := add(ref, false); err != nil {
			return nil, err
		}
	}
	for _, ref := range opParams {
		if err := add(ref, true); err != nil {
			return nil, err
		}
	}

	out := make([]*Parameter, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

// reconcilePathParameters checks every template token of the path against
// the declared path parameters, synthesizing missing ones outside strict
// mode.
func reconcilePathParameters(endpoint *Endpoint, report *Report, opts Options) error {
	declared := make(map[string]bool)
	for _, p := range endpoint.Parameters {
		if p.In == InPath {
			declared[p.Name] = true
		}
	}

	for _, match := range pathTemplateToken.FindAllStringSubmatch(endpoint.Path, -1) {
		token := match[1]
		if declared[token] {
			continue
		}
		msg := fmt.Sprintf("%s: path template token {%s} has no declared path parameter", endpoint.ID, token)
		if opts.Strict {
			return apierr.NewSpecInvariant(msg)
		}
		report.addWarning(msg)
		endpoint.Parameters = append(endpoint.Parameters, &Parameter{
			Name:     token,
			In:       InPath,
			Required: true,
			Schema:   &SchemaNode{Inline: &Schema{Type: "string"}},
		})
	}
	return nil
}

func convertContent(content openapi3.Content) map[string]*MediaType {
	if len(content) == 0 {
		return nil
	}
	out := make(map[string]*MediaType, len(content))
	for contentType, media := range content {
		out[contentType] = &MediaType{
			Schema:  convertSchemaNode(media.Schema),
			Example: media.Example,
		}
	}
	return out
}

// synthOperationID derives an operation id from the method and path; never
// used for deduplication.
func synthOperationID(method, path string) string {
	cleaned := pathTemplateToken.ReplaceAllString(path, "$1")
	cleaned = strings.Trim(cleaned, "/")
	cleaned = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(cleaned)
	if cleaned == "" {
		cleaned = "root"
	}
	return strings.ToLower(method + "_" + cleaned)
}

// refName extracts the component name from a local reference.
func refName(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

// convertSchemaNode converts a kin schema reference into a name handle or
// an inline schema. Handles are never inlined, which keeps the value graph
// finite in the presence of cycles.
func convertSchemaNode(ref *openapi3.SchemaRef) *SchemaNode {
	if ref == nil {
		return nil
	}
	if ref.Ref != "" {
		return &SchemaNode{Ref: refName(ref.Ref)}
	}
	if ref.Value == nil {
		return nil
	}
	return &SchemaNode{Inline: convertSchema(ref.Value)}
}

func convertSchemaNodes(refs openapi3.SchemaRefs) []*SchemaNode {
	if len(refs) == 0 {
		return nil
	}
	out := make([]*SchemaNode, 0, len(refs))
	for _, ref := range refs {
		if node := convertSchemaNode(ref); node != nil {
			out = append(out, node)
		}
	}
	return out
}

// convertSchema maps one kin schema value onto the normalized shape.
// The 3.1 ["type", "null"] form and the 3.0 nullable flag are unified.
func convertSchema(s *openapi3.Schema) *Schema {
	out := &Schema{
		Format:       s.Format,
		Title:        s.Title,
		Description:  s.Description,
		Nullable:     s.Nullable,
		Required:     s.Required,
		Enum:         s.Enum,
		Minimum:      s.Min,
		Maximum:      s.Max,
		ExclusiveMin: s.ExclusiveMin,
		ExclusiveMax: s.ExclusiveMax,
		MinLength:    s.MinLength,
		MaxLength:    s.MaxLength,
		Pattern:      s.Pattern,
		MinItems:     s.MinItems,
		MaxItems:     s.MaxItems,
		UniqueItems:  s.UniqueItems,
		ReadOnly:     s.ReadOnly,
		WriteOnly:    s.WriteOnly,
		Deprecated:   s.Deprecated,
		Example:      s.Example,
		Default:      s.Default,
		Extensions:   captureExtensions(s.Extensions),
	}

	if s.Type != nil {
		for _, t := range s.Type.Slice() {
			if t == "null" {
				out.Nullable = true
				continue
			}
			if out.Type == "" {
				out.Type = t
			}
		}
	}
	if out.Type == "" && out.Nullable {
		out.Type = "null"
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*SchemaNode, len(s.Properties))
		for name, ref := range s.Properties {
			out.Properties[name] = convertSchemaNode(ref)
		}
	}
	if s.Items != nil {
		out.Items = convertSchemaNode(s.Items)
	}
	out.AllOf = convertSchemaNodes(s.AllOf)
	out.OneOf = convertSchemaNodes(s.OneOf)
	out.AnyOf = convertSchemaNodes(s.AnyOf)
	if s.Not != nil {
		out.Not = convertSchemaNode(s.Not)
	}

	if s.Discriminator != nil {
		out.Discriminator = &Discriminator{
			PropertyName: s.Discriminator.PropertyName,
			Mapping:      s.Discriminator.Mapping,
		}
	}

	return out
}

// knownSchemaKeywords are the JSON Schema keywords the normalizer models.
var knownSchemaKeywords = map[string]bool{
	"$ref": true, "type": true, "format": true, "title": true,
	"description": true, "properties": true, "required": true,
	"items": true, "enum": true, "allOf": true, "oneOf": true,
	"anyOf": true, "not": true, "minimum": true, "maximum": true,
	"exclusiveMinimum": true, "exclusiveMaximum": true,
	"minLength": true, "maxLength": true, "pattern": true,
	"minItems": true, "maxItems": true, "uniqueItems": true,
	"readOnly": true, "writeOnly": true, "deprecated": true,
	"discriminator": true, "example": true, "examples": true,
	"default": true, "nullable": true, "additionalProperties": true,
	"xml": true, "externalDocs": true,
}

// normalizeSchemas converts every named component schema, preserving
// unknown keywords from the raw tree.
func normalizeSchemas(doc *openapi3.T, parsed *ParsedDocument, api *NormalizedAPI, report *Report) {
	var schemaRefs map[string]*openapi3.SchemaRef
	if doc.Components != nil {
		schemaRefs = doc.Components.Schemas
	}

	rawSchemas := rawSchemaSection(parsed)

	names := make([]string, 0, len(schemaRefs))
	for name := range schemaRefs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := schemaRefs[name]
		if ref == nil || ref.Value == nil {
			report.addWarning(fmt.Sprintf("component schema %q has no value", name))
			continue
		}
		schema := convertSchema(ref.Value)
		schema.Name = name
		schema.UnknownKeywords = unknownKeywords(rawSchemas[name])
		api.Schemas[name] = schema
	}
}

func rawSchemaSection(parsed *ParsedDocument) map[string]interface{} {
	if parsed.Dialect == "2.0" {
		m, _ := parsed.Raw["definitions"].(map[string]interface{})
		return m
	}
	components, _ := parsed.Raw["components"].(map[string]interface{})
	if components == nil {
		return nil
	}
	m, _ := components["schemas"].(map[string]interface{})
	return m
}

// unknownKeywords captures top-level keywords of a raw schema object that
// the normalized model does not represent.
func unknownKeywords(raw interface{}) map[string]interface{} {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	var out map[string]interface{}
	for key, value := range obj {
		if knownSchemaKeywords[key] || strings.HasPrefix(key, "x-") {
			continue
		}
		if out == nil {
			out = make(map[string]interface{})
		}
		out[key] = value
	}
	return out
}

// normalizeSecuritySchemes converts component security schemes. The 2.0
// securityDefinitions arrive here already translated to the 3.x shape.
func normalizeSecuritySchemes(doc *openapi3.T, api *NormalizedAPI, report *Report) {
	if doc.Components == nil {
		return
	}
	for name, ref := range doc.Components.SecuritySchemes {
		if ref == nil || ref.Value == nil {
			report.addWarning(fmt.Sprintf("security scheme %q has no value", name))
			continue
		}
		s := ref.Value
		scheme := &SecurityScheme{
			Name:        name,
			Type:        s.Type,
			Description: s.Description,
		}
		switch s.Type {
		case SecurityAPIKey:
			scheme.ParamName = s.Name
			scheme.In = s.In
		case SecurityHTTP:
			scheme.Scheme = s.Scheme
			scheme.BearerFormat = s.BearerFormat
		case SecurityOAuth2:
			scheme.Flows = convertFlows(s.Flows)
			if len(scheme.Flows) == 0 {
				report.addWarning(fmt.Sprintf("oauth2 scheme %q declares no flows", name))
			}
		case SecurityOpenIDConnect:
			scheme.OpenIDConnectURL = s.OpenIdConnectUrl
		case SecurityMutualTLS:
			// carries no variant fields
		default:
			report.addWarning(fmt.Sprintf("security scheme %q has unknown type %q", name, s.Type))
		}
		api.SecuritySchemes[name] = scheme
	}
}

func convertFlows(flows *openapi3.OAuthFlows) map[string]*OAuthFlow {
	if flows == nil {
		return nil
	}
	out := make(map[string]*OAuthFlow)
	add := func(name string, flow *openapi3.OAuthFlow) {
		if flow == nil {
			return
		}
		out[name] = &OAuthFlow{
			AuthorizationURL: flow.AuthorizationURL,
			TokenURL:         flow.TokenURL,
			RefreshURL:       flow.RefreshURL,
			Scopes:           flow.Scopes,
		}
	}
	add("authorizationCode", flows.AuthorizationCode)
	add("implicit", flows.Implicit)
	add("password", flows.Password)
	add("clientCredentials", flows.ClientCredentials)
	if len(out) == 0 {
		return nil
	}
	return out
}
