package search

import (
	"context"
	"time"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"

	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/index"
	"openapi-mcp-server/internal/logging"
)

// MaxPerPage clamps the page size.
const MaxPerPage = 100

// DefaultPerPage is used when the caller does not specify one.
const DefaultPerPage = 10

// Engine is the query engine. It is stateless apart from the response
// cache; concurrent Search calls share the index reader.
type Engine struct {
	reader    *index.Reader
	compiler  *compiler
	cache     *queryCache
	suggester *suggester

	poolCeiling  int
	queryTimeout time.Duration
	logger       logging.Logger
}

// NewEngine creates a query engine over the given reader.
func NewEngine(reader *index.Reader, cfg config.SearchConfig, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.WithComponent("search")
	}

	weights := make(map[string]float64, len(index.DefaultFieldWeights))
	for field, weight := range index.DefaultFieldWeights {
		weights[field] = weight
	}
	applyWeightOverrides(weights, cfg.FieldWeights)

	ceiling := cfg.Performance.MaxResults
	if ceiling <= 0 {
		ceiling = 1000
	}
	timeout := time.Duration(cfg.Performance.SearchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// Entry count sized from the configured budget; an assembled response
	// page occupies on the order of 64 KiB.
	capacity := cfg.Performance.CacheSizeMB * 16
	return &Engine{
		reader:       reader,
		compiler:     &compiler{weights: weights},
		cache:        newQueryCache(capacity, 5*time.Minute),
		suggester:    &suggester{vocab: reader},
		poolCeiling:  ceiling,
		queryTimeout: timeout,
		logger:       logger,
	}
}

func applyWeightOverrides(weights map[string]float64, overrides config.FieldWeightsConfig) {
	set := func(field string, value float64) {
		if value != 0 {
			weights[field] = value
		}
	}
	set(index.FieldEndpointPath, overrides.EndpointPath)
	set(index.FieldSummary, overrides.Summary)
	set(index.FieldDescription, overrides.Description)
	set(index.FieldParameterNames, overrides.Parameters)
	set(index.FieldTags, overrides.Tags)
}

// Search runs the full processing pipeline: parse, normalize, expand,
// compile, execute, enrich, organize, paginate, summarize, cache.
func (e *Engine) Search(ctx context.Context, req *Request) (*Response, error) {
	started := time.Now()

	page, perPage := clampPagination(req.Page, req.PerPage)

	parsed := Parse(req.Query)
	terms := Expand(NormalizeTerms(parsed.FreeTerms))

	// Empty and stop-word-only queries return no results with a warning.
	if !parsed.MatchAll && len(terms) == 0 && len(parsed.FieldTerms) == 0 && len(parsed.Excluded) == 0 {
		warnings := parsed.Warnings
		if len(parsed.FreeTerms) > 0 && OnlyStopWords(parsed.FreeTerms) {
			warnings = append(warnings, "query contains only stop-words")
		}
		return emptyResponse(page, perPage, parsed.Type, warnings, started), nil
	}

	generation := e.reader.Generation()
	key := cacheKey(generation, normalizedKeyText(parsed, terms), req.Filters, page, perPage)
	if cached, ok := e.cache.get(key); ok {
		clone := *cached
		clone.Cached = true
		return &clone, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	hits, total, err := e.execute(queryCtx, parsed, terms, req.Filters, false)
	if err != nil {
		return nil, err
	}

	// Fuzzy second pass for sparse plain-text results.
	if total < suggestionThreshold && !parsed.HasOperators() && hasLongTerm(terms) {
		if fuzzyHits, fuzzyTotal, err := e.execute(queryCtx, parsed, terms, req.Filters, true); err == nil && fuzzyTotal > total {
			hits, total = fuzzyHits, fuzzyTotal
		}
	}

	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, enrich(hit))
	}
	results = filterByComplexity(results, req.Filters.Complexity)

	response := &Response{
		QueryType: parsed.Type,
		Warnings:  parsed.Warnings,
		Clusters:  organize(results),
	}
	response.Results, response.Pagination = paginate(results, page, perPage)
	response.Summary = summarize(results, started)

	if len(results) < suggestionThreshold {
		response.Suggestions = e.suggester.Suggest(parsed, terms)
	}

	e.cache.put(key, response)
	e.logger.DebugContext(ctx, "search executed",
		"query", req.Query, "total", total, "returned", len(response.Results),
		"elapsed_ms", time.Since(started).Milliseconds())
	return response, nil
}

// execute compiles and runs the query, returning the ranked pool.
func (e *Engine) execute(ctx context.Context, parsed *ParsedQuery, terms []Term, filters Filters, withFuzzy bool) ([]*bsearch.DocumentMatch, int, error) {
	compiled := e.compiler.Compile(parsed, terms, filters, withFuzzy)

	searchReq := bleve.NewSearchRequest(compiled)
	searchReq.Size = e.poolCeiling
	searchReq.Fields = []string{"*"}

	result, err := e.reader.Search(ctx, searchReq)
	if err != nil {
		return nil, 0, err
	}
	return result.Hits, int(result.Total), nil
}

func hasLongTerm(terms []Term) bool {
	for _, term := range terms {
		if len(term.Raw) > 3 {
			return true
		}
	}
	return false
}

// filterByComplexity drops results outside the requested complexity level.
// Complexity is computed at enrichment time, so this filter runs after
// execution rather than inside the index query.
func filterByComplexity(results []*Result, level string) []*Result {
	if level == "" {
		return results
	}
	filtered := make([]*Result, 0, len(results))
	for _, r := range results {
		if r.Complexity == level {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// organize builds the cluster views over the ranked result list.
func organize(results []*Result) *Clusters {
	if len(results) == 0 {
		return nil
	}
	clusters := &Clusters{
		ByTag:           make(map[string][]string),
		ByResource:      make(map[string][]string),
		ByComplexity:    make(map[string][]string),
		ByMethod:        make(map[string][]string),
		ByOperationType: make(map[string][]string),
		ByAuth:          make(map[string][]string),
	}
	for _, r := range results {
		for _, tag := range r.Tags {
			clusters.ByTag[tag] = append(clusters.ByTag[tag], r.EndpointID)
		}
		if r.ResourceGroup != "" {
			clusters.ByResource[r.ResourceGroup] = append(clusters.ByResource[r.ResourceGroup], r.EndpointID)
		}
		clusters.ByComplexity[r.Complexity] = append(clusters.ByComplexity[r.Complexity], r.EndpointID)
		clusters.ByMethod[r.Method] = append(clusters.ByMethod[r.Method], r.EndpointID)
		if r.OperationType != "" {
			clusters.ByOperationType[r.OperationType] = append(clusters.ByOperationType[r.OperationType], r.EndpointID)
		}
		auth := "none"
		if r.Auth.Required {
			auth = "required"
		}
		clusters.ByAuth[auth] = append(clusters.ByAuth[auth], r.EndpointID)
	}
	return clusters
}

func clampPagination(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// paginate slices the pool into the requested page and fills the metadata.
func paginate(results []*Result, page, perPage int) ([]*Result, Pagination) {
	total := len(results)
	totalPages := (total + perPage - 1) / perPage

	p := Pagination{
		Page:         page,
		PerPage:      perPage,
		TotalResults: total,
		TotalPages:   totalPages,
	}

	start := (page - 1) * perPage
	if start >= total {
		p.HasPrevious = page > 1 && totalPages > 0
		if p.HasPrevious {
			p.PreviousPage = page - 1
		}
		return []*Result{}, p
	}
	end := start + perPage
	if end > total {
		end = total
	}

	p.HasPrevious = page > 1
	p.HasNext = end < total
	if p.HasPrevious {
		p.PreviousPage = page - 1
	}
	if p.HasNext {
		p.NextPage = page + 1
	}
	return results[start:end], p
}

// summarize aggregates the whole pool, not just the returned page.
func summarize(results []*Result, started time.Time) Summary {
	summary := Summary{
		ResultsByMethod:     make(map[string]int),
		ResultsByAuth:       make(map[string]int),
		ResultsByComplexity: make(map[string]int),
	}
	var scoreSum float64
	for _, r := range results {
		summary.ResultsByMethod[r.Method]++
		if r.Auth.Required {
			summary.ResultsByAuth["required"]++
		} else {
			summary.ResultsByAuth["none"]++
		}
		summary.ResultsByComplexity[r.Complexity]++
		scoreSum += r.Score
	}
	if len(results) > 0 {
		summary.AverageScore = scoreSum / float64(len(results))
	}
	summary.ProcessingTimeMS = time.Since(started).Milliseconds()
	return summary
}

func emptyResponse(page, perPage int, queryType string, warnings []string, started time.Time) *Response {
	response := &Response{
		Results:   []*Result{},
		QueryType: queryType,
		Warnings:  warnings,
	}
	_, response.Pagination = paginate(nil, page, perPage)
	response.Summary = summarize(nil, started)
	return response
}

// CacheSize reports the number of live cache entries.
func (e *Engine) CacheSize() int { return e.cache.len() }
