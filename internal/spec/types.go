// Package spec implements the specification normalizer: it turns a raw
// OpenAPI document into a closed, dependency-annotated value graph with a
// uniform shape across the 2.0 and 3.x dialects.
package spec

// NormalizedAPI is the resolved, dependency-annotated view of one
// specification document. Schemas reference each other by name handles, so
// the value graph stays finite even when the schema graph is cyclic.
type NormalizedAPI struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Dialect     string `json:"dialect"`
	Description string `json:"description,omitempty"`

	Servers []Server `json:"servers,omitempty"`
	Contact string   `json:"contact,omitempty"`
	License string   `json:"license,omitempty"`

	SpecHash   string `json:"specification_hash"`
	SourcePath string `json:"source_path"`
	FileSize   int64  `json:"file_size"`

	Endpoints       []*Endpoint                `json:"endpoints"`
	Schemas         map[string]*Schema         `json:"schemas"`
	SecuritySchemes map[string]*SecurityScheme `json:"security_schemes"`

	Tags       []Tag                  `json:"tags,omitempty"`
	TagGroups  []TagGroup             `json:"tag_groups,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Server is one base URL entry, with its variables kept verbatim.
type Server struct {
	URL         string            `json:"url"`
	Description string            `json:"description,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// Tag is a root-level tag definition.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TagGroup is one entry of the x-tagGroups extension.
type TagGroup struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Endpoint is a (path, HTTP method) pair with its operation metadata.
type Endpoint struct {
	// ID is the stable endpoint identifier: "<METHOD>:<path>".
	ID          string `json:"id"`
	Path        string `json:"path"`
	Method      string `json:"method"`
	OperationID string `json:"operation_id,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`

	Tags        []string               `json:"tags,omitempty"`
	Parameters  []*Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody           `json:"request_body,omitempty"`
	Responses   map[string]*Response   `json:"responses,omitempty"`
	Security    []SecurityRequirement  `json:"security,omitempty"`
	Deprecated  bool                   `json:"deprecated,omitempty"`
	Callbacks   []string               `json:"callbacks,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`

	// CallbackSchemas are the request payload schemas of the endpoint's
	// callback operations; they feed the callback dependency edges.
	CallbackSchemas []*SchemaNode `json:"callback_schemas,omitempty"`

	// Category metadata, assigned by the categorization engine.
	Category        string `json:"category,omitempty"`
	CategoryDisplay string `json:"category_display,omitempty"`
	CategoryGroup   string `json:"category_group,omitempty"`

	// Derived fields.
	SchemaDependencies []string         `json:"schema_dependencies,omitempty"`
	SecurityUsed       []string         `json:"security_used,omitempty"`
	DependencyEdges    []DependencyEdge `json:"dependency_edges,omitempty"`
	SearchableText     string           `json:"searchable_text,omitempty"`
	ParameterNames     []string         `json:"parameter_names,omitempty"`
	ResponseCodes      []string         `json:"response_codes,omitempty"`
	ContentTypes       []string         `json:"content_types,omitempty"`
}

// SecurityRequirement maps a security scheme name to its required scopes.
type SecurityRequirement map[string][]string

// Parameter locations. The location field is the variant discriminator.
const (
	InQuery  = "query"
	InPath   = "path"
	InHeader = "header"
	InCookie = "cookie"
)

// Parameter describes one operation parameter.
type Parameter struct {
	Name        string                 `json:"name"`
	In          string                 `json:"in"`
	Required    bool                   `json:"required,omitempty"`
	Description string                 `json:"description,omitempty"`
	Schema      *SchemaNode            `json:"schema,omitempty"`
	Example     interface{}            `json:"example,omitempty"`
	Deprecated  bool                   `json:"deprecated,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// RequestBody describes the operation request body.
type RequestBody struct {
	Description string                `json:"description,omitempty"`
	Required    bool                  `json:"required,omitempty"`
	Content     map[string]*MediaType `json:"content,omitempty"`
}

// Response describes one status-code response.
type Response struct {
	Description string                `json:"description,omitempty"`
	Content     map[string]*MediaType `json:"content,omitempty"`
	Headers     []string              `json:"headers,omitempty"`
}

// MediaType binds a content type to its schema and example.
type MediaType struct {
	Schema  *SchemaNode `json:"schema,omitempty"`
	Example interface{} `json:"example,omitempty"`
}

// SchemaNode is either a name handle to a component schema or an inline
// schema. Exactly one side is set; handles are resolved lazily at read time.
type SchemaNode struct {
	Ref    string  `json:"$ref,omitempty"`
	Inline *Schema `json:"schema,omitempty"`
}

// IsRef reports whether the node is a name handle.
func (n *SchemaNode) IsRef() bool { return n != nil && n.Ref != "" }

// Schema is a normalized JSON-Schema-like structure definition.
type Schema struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Nullable    bool   `json:"nullable,omitempty"`

	Properties map[string]*SchemaNode `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
	Items      *SchemaNode            `json:"items,omitempty"`
	Enum       []interface{}          `json:"enum,omitempty"`

	AllOf []*SchemaNode `json:"allOf,omitempty"`
	OneOf []*SchemaNode `json:"oneOf,omitempty"`
	AnyOf []*SchemaNode `json:"anyOf,omitempty"`
	Not   *SchemaNode   `json:"not,omitempty"`

	Minimum      *float64 `json:"minimum,omitempty"`
	Maximum      *float64 `json:"maximum,omitempty"`
	ExclusiveMin bool     `json:"exclusive_min,omitempty"`
	ExclusiveMax bool     `json:"exclusive_max,omitempty"`
	MinLength    uint64   `json:"min_length,omitempty"`
	MaxLength    *uint64  `json:"max_length,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	MinItems     uint64   `json:"min_items,omitempty"`
	MaxItems     *uint64  `json:"max_items,omitempty"`
	UniqueItems  bool     `json:"unique_items,omitempty"`

	ReadOnly      bool                   `json:"read_only,omitempty"`
	WriteOnly     bool                   `json:"write_only,omitempty"`
	Deprecated    bool                   `json:"deprecated,omitempty"`
	Discriminator *Discriminator         `json:"discriminator,omitempty"`
	Example       interface{}            `json:"example,omitempty"`
	Default       interface{}            `json:"default,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`

	// UnknownKeywords preserves JSON Schema keywords the normalizer does
	// not model; they never block normalization.
	UnknownKeywords map[string]interface{} `json:"unknown_keywords,omitempty"`

	// Derived fields.
	Dependencies   []string `json:"dependencies,omitempty"`
	ReferenceCount int      `json:"reference_count"`
	Cycles         []string `json:"cycles,omitempty"`
	SearchableText string   `json:"searchable_text,omitempty"`
	PropertyNames  []string `json:"property_names,omitempty"`
}

// Discriminator selects a composition branch by property value.
type Discriminator struct {
	PropertyName string            `json:"property_name"`
	Mapping      map[string]string `json:"mapping,omitempty"`
}

// Security scheme types. The type field is the variant discriminator; each
// variant owns exactly the fields meaningful to it.
const (
	SecurityAPIKey        = "apiKey"
	SecurityHTTP          = "http"
	SecurityOAuth2        = "oauth2"
	SecurityOpenIDConnect = "openIdConnect"
	SecurityMutualTLS     = "mutualTLS"
)

// SecurityScheme is a normalized security scheme definition.
type SecurityScheme struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`

	// apiKey
	ParamName string `json:"param_name,omitempty"`
	In        string `json:"in,omitempty"`

	// http
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearer_format,omitempty"`

	// oauth2, keyed by flow name
	Flows map[string]*OAuthFlow `json:"flows,omitempty"`

	// openIdConnect
	OpenIDConnectURL string `json:"openid_connect_url,omitempty"`

	ReferenceCount int `json:"reference_count"`
}

// OAuthFlow is one named OAuth2 flow.
type OAuthFlow struct {
	AuthorizationURL string            `json:"authorization_url,omitempty"`
	TokenURL         string            `json:"token_url,omitempty"`
	RefreshURL       string            `json:"refresh_url,omitempty"`
	Scopes           map[string]string `json:"scopes,omitempty"`
}

// Dependency edge roles.
const (
	RoleParameter   = "parameter"
	RoleRequestBody = "requestBody"
	RoleCallback    = "callback"
)

// DependencyEdge is a directed edge from an endpoint to a schema, tagged
// with the role the schema plays ("parameter", "requestBody",
// "response:<code>", "callback").
type DependencyEdge struct {
	EndpointID string `json:"endpoint_id"`
	SchemaName string `json:"schema_name"`
	Role       string `json:"role"`
}

// Report collects errors, warnings, and counters from one normalization.
type Report struct {
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Counters map[string]int `json:"counters"`
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Counters: make(map[string]int)}
}

func (r *Report) addError(msg string)   { r.Errors = append(r.Errors, msg) }
func (r *Report) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }
