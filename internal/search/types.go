// Package search implements the query engine: parsing the user query
// language, compiling it against the keyword-weighted index, and turning
// hits into an enriched, clustered, paginated result page.
package search

// Request is one search invocation.
type Request struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// Filters are the caller-supplied structured constraints combined with the
// compiled query.
type Filters struct {
	Methods              []string `json:"methods,omitempty"`
	RequireAuth          *bool    `json:"require_auth,omitempty"`
	AuthSchemes          []string `json:"auth_schemes,omitempty"`
	RequiredParamsOnly   bool     `json:"required_params_only,omitempty"`
	ParameterNames       []string `json:"parameter_names,omitempty"`
	MaxParameters        *int     `json:"max_parameters,omitempty"`
	HasFileUpload        *bool    `json:"has_file_upload,omitempty"`
	ResponseContentTypes []string `json:"response_content_types,omitempty"`
	Complexity           string   `json:"complexity,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	IncludeDeprecated    bool     `json:"include_deprecated,omitempty"`
}

// Result is one enriched hit. The flat parameter and response counts are
// the primary wire fields; the summaries carry the detailed breakdowns.
type Result struct {
	EndpointID  string   `json:"id"`
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	OperationID string   `json:"operationId,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"score"`
	Deprecated  bool     `json:"deprecated,omitempty"`

	ParameterCount int `json:"parameters"`
	ResponseCount  int `json:"responses"`

	ResourceGroup string `json:"resource_group,omitempty"`
	OperationType string `json:"operation_type,omitempty"`
	Complexity    string `json:"complexity"`

	Parameters ParameterSummary `json:"parameter_summary"`
	Auth       AuthSummary      `json:"auth"`
	Responses  ResponseSummary  `json:"response_summary"`
}

// ParameterSummary aggregates the endpoint's parameter surface.
type ParameterSummary struct {
	Total           int            `json:"total"`
	Required        int            `json:"required"`
	Optional        int            `json:"optional"`
	TypeHistogram   map[string]int `json:"type_histogram,omitempty"`
	HasFileUpload   bool           `json:"has_file_upload,omitempty"`
	HasComplexTypes bool           `json:"has_complex_types,omitempty"`
	CommonNames     []string       `json:"common_names,omitempty"`
}

// AuthSummary aggregates the endpoint's security requirements.
type AuthSummary struct {
	Required bool     `json:"required"`
	Schemes  []string `json:"schemes,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// ResponseSummary aggregates the endpoint's response surface.
type ResponseSummary struct {
	StatusCodes  []string `json:"status_codes,omitempty"`
	ContentTypes []string `json:"content_types,omitempty"`
	Count        int      `json:"count"`
}

// Clusters are views over the same ranked result list; each cluster lists
// result identifiers in rank order.
type Clusters struct {
	ByTag           map[string][]string `json:"by_tag,omitempty"`
	ByResource      map[string][]string `json:"by_resource,omitempty"`
	ByComplexity    map[string][]string `json:"by_complexity,omitempty"`
	ByMethod        map[string][]string `json:"by_method,omitempty"`
	ByOperationType map[string][]string `json:"by_operation_type,omitempty"`
	ByAuth          map[string][]string `json:"by_auth,omitempty"`
}

// Pagination describes the returned page.
type Pagination struct {
	Page         int  `json:"page"`
	PerPage      int  `json:"per_page"`
	TotalResults int  `json:"total_results"`
	TotalPages   int  `json:"total_pages"`
	HasPrevious  bool `json:"has_previous"`
	HasNext      bool `json:"has_next"`
	PreviousPage int  `json:"previous_page,omitempty"`
	NextPage     int  `json:"next_page,omitempty"`
}

// Summary carries aggregate counts over the full result pool.
type Summary struct {
	ResultsByMethod     map[string]int `json:"results_by_method,omitempty"`
	ResultsByAuth       map[string]int `json:"results_by_auth,omitempty"`
	ResultsByComplexity map[string]int `json:"results_by_complexity,omitempty"`
	AverageScore        float64        `json:"average_score"`
	ProcessingTimeMS    int64          `json:"processing_time_ms"`
}

// Suggestion categories.
const (
	SuggestTypoFix    = "typo_fix"
	SuggestBroader    = "broader_query"
	SuggestSimilar    = "similar_term"
	SuggestFieldScope = "field_scope"
	SuggestAPIPattern = "api_pattern"
)

// Suggestion is one alternative query offered when results are sparse.
type Suggestion struct {
	Query    string  `json:"query"`
	Score    float64 `json:"score"`
	Category string  `json:"category"`
}

// Response is the assembled result page.
type Response struct {
	Results     []*Result    `json:"results"`
	Clusters    *Clusters    `json:"clusters,omitempty"`
	Pagination  Pagination   `json:"pagination"`
	Summary     Summary      `json:"summary"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	QueryType   string       `json:"query_type,omitempty"`
	Cached      bool         `json:"cached,omitempty"`
}
