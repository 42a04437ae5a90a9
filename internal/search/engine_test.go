package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/index"
)

// testCorpus builds a small but varied endpoint corpus: user CRUD, order
// endpoints with auth, a deprecated endpoint, and an upload endpoint.
func testCorpus() []*index.SearchDocument {
	docs := []*index.SearchDocument{
		{
			EndpointID: "GET:/users", EndpointPath: "/users", Method: "GET",
			Summary: "List all users", OperationType: index.OpList,
			ResourceName: "users", PathSegments: []string{"users"},
			Keywords: []string{"users", "list"}, Tags: []string{"users"},
			ParameterNames: []string{"limit", "offset"},
			OptionalParameters: []string{"limit", "offset"},
			ParameterTypes: []string{"integer", "integer"},
			StatusCodes:    []string{"200"},
			SearchableText: "list all users", ParameterCount: 2, ResponseCount: 1,
		},
		{
			EndpointID: "POST:/users", EndpointPath: "/users", Method: "POST",
			Summary: "Create a user", OperationType: index.OpCreate,
			ResourceName: "users", PathSegments: []string{"users"},
			Keywords: []string{"users", "create"}, Tags: []string{"users"},
			HasRequestBody: true, StatusCodes: []string{"201"},
			SearchableText: "create a user", ResponseCount: 1,
		},
		{
			EndpointID: "GET:/users/{userId}", EndpointPath: "/users/{userId}", Method: "GET",
			Summary: "Get user by identifier", OperationType: index.OpRead,
			ResourceName: "users", PathSegments: []string{"users", "userId"},
			Keywords: []string{"users", "user"}, Tags: []string{"users"},
			ParameterNames: []string{"userId"}, RequiredParameters: []string{"userId"},
			ParameterTypes: []string{"string"}, StatusCodes: []string{"200", "404"},
			SearchableText: "get user by identifier", ParameterCount: 1, ResponseCount: 2,
		},
		{
			EndpointID: "GET:/orders", EndpointPath: "/orders", Method: "GET",
			Summary: "List orders for the authenticated customer", OperationType: index.OpList,
			ResourceName: "orders", PathSegments: []string{"orders"},
			Keywords: []string{"orders", "list"}, Tags: []string{"orders"},
			SecuritySchemes: []string{"bearerAuth"}, StatusCodes: []string{"200"},
			SearchableText: "list orders authenticated customer", ResponseCount: 1,
		},
		{
			EndpointID: "DELETE:/orders/{orderId}", EndpointPath: "/orders/{orderId}", Method: "DELETE",
			Summary: "Cancel an order", OperationType: index.OpDelete,
			ResourceName: "orders", PathSegments: []string{"orders", "orderId"},
			Keywords: []string{"orders", "cancel"}, Tags: []string{"orders"},
			SecuritySchemes: []string{"bearerAuth"},
			ParameterNames:  []string{"orderId"}, RequiredParameters: []string{"orderId"},
			ParameterTypes: []string{"string"}, StatusCodes: []string{"204", "404"},
			SearchableText: "cancel an order", ParameterCount: 1, ResponseCount: 2,
		},
		{
			EndpointID: "GET:/invoices", EndpointPath: "/invoices", Method: "GET",
			Summary: "List invoices (deprecated)", OperationType: index.OpList,
			ResourceName: "invoices", PathSegments: []string{"invoices"},
			Keywords: []string{"invoices"}, Deprecated: true,
			StatusCodes:    []string{"200"},
			SearchableText: "list invoices", ResponseCount: 1,
		},
		{
			EndpointID: "POST:/documents/upload", EndpointPath: "/documents/upload", Method: "POST",
			Summary: "Upload a document attachment", OperationType: index.OpUpload,
			ResourceName: "documents", PathSegments: []string{"documents", "upload"},
			Keywords: []string{"documents", "upload", "attachment"},
			HasRequestBody: true, ContentTypes: []string{"multipart/form-data"},
			StatusCodes:    []string{"201"},
			SearchableText: "upload a document attachment", ResponseCount: 1,
		},
	}
	// Padding endpoints so pagination has something to slice.
	for i := 0; i < 40; i++ {
		docs = append(docs, &index.SearchDocument{
			EndpointID:   fmt.Sprintf("GET:/widgets/%d", i),
			EndpointPath: fmt.Sprintf("/widgets/%d", i),
			Method:       "GET", Summary: "Read widget", OperationType: index.OpRead,
			ResourceName: "widgets", PathSegments: []string{"widgets"},
			Keywords:       []string{"widgets", "widget"},
			StatusCodes:    []string{"200"},
			SearchableText: "read widget", ResponseCount: 1,
		})
	}
	return docs
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	generations, err := index.NewGenerations(t.TempDir())
	require.NoError(t, err)

	builder := index.NewBuilder(generations, 0, nil)
	stats, err := builder.Build(context.Background(), testCorpus())
	require.NoError(t, err)
	require.NoError(t, generations.Activate(stats.Generation))

	reader, err := index.OpenReader(generations)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	return NewEngine(reader, config.SearchConfig{}, nil)
}

func TestSearchSimpleQuery(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "users"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "users", r.ResourceGroup)
	}
	assert.NotNil(t, resp.Clusters)
	assert.Contains(t, resp.Clusters.ByResource, "users")
}

func TestSearchIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	req := &Request{Query: "list users"}

	first, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].EndpointID, second.Results[i].EndpointID)
	}
	// The second call is served from the cache; content is unchanged.
	assert.True(t, second.Cached)
}

func TestSearchBooleanSemantics(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	and, err := engine.Search(ctx, &Request{Query: "users AND create", PerPage: 100})
	require.NoError(t, err)
	or, err := engine.Search(ctx, &Request{Query: "users OR create", PerPage: 100})
	require.NoError(t, err)
	not, err := engine.Search(ctx, &Request{Query: "users NOT create", PerPage: 100})
	require.NoError(t, err)

	ids := func(resp *Response) map[string]bool {
		set := make(map[string]bool)
		for _, r := range resp.Results {
			set[r.EndpointID] = true
		}
		return set
	}
	andIDs, orIDs, notIDs := ids(and), ids(or), ids(not)

	// AND results are a subset of OR results.
	for id := range andIDs {
		assert.True(t, orIDs[id], "AND result %s missing from OR results", id)
	}
	// NOT excludes everything the negated term matches.
	assert.True(t, notIDs["GET:/users"])
	assert.False(t, notIDs["POST:/users"])
}

func TestSearchMethodQualifier(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "method:DELETE orders", PerPage: 100})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "DELETE", r.Method)
	}
	assert.Equal(t, QueryField, resp.QueryType)
}

func TestSearchMethodFilter(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{
		Query:   "users",
		Filters: Filters{Methods: []string{"POST"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "POST", r.Method)
	}
}

func TestSearchAuthFilter(t *testing.T) {
	engine := newTestEngine(t)
	yes := true

	resp, err := engine.Search(context.Background(), &Request{
		Query:   "*",
		Filters: Filters{RequireAuth: &yes},
		PerPage: 100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.True(t, r.Auth.Required, "%s should require auth", r.EndpointID)
	}
}

func TestSearchExcludesDeprecatedByDefault(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "invoices"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.False(t, r.Deprecated)
	}

	resp, err = engine.Search(context.Background(), &Request{
		Query:   "invoices",
		Filters: Filters{IncludeDeprecated: true},
	})
	require.NoError(t, err)
	found := false
	for _, r := range resp.Results {
		if r.EndpointID == "GET:/invoices" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearchPaginationPartition(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Search(ctx, &Request{Query: "*", Page: 1, PerPage: 20})
	require.NoError(t, err)
	// 47 documents minus the deprecated invoice endpoint.
	total := first.Pagination.TotalResults
	require.Equal(t, 46, total)
	assert.Equal(t, 3, first.Pagination.TotalPages)
	assert.True(t, first.Pagination.HasNext)
	assert.False(t, first.Pagination.HasPrevious)

	seen := make(map[string]bool)
	collected := 0
	for page := 1; page <= first.Pagination.TotalPages; page++ {
		resp, err := engine.Search(ctx, &Request{Query: "*", Page: page, PerPage: 20})
		require.NoError(t, err)
		for _, r := range resp.Results {
			assert.False(t, seen[r.EndpointID], "endpoint %s repeated across pages", r.EndpointID)
			seen[r.EndpointID] = true
		}
		collected += len(resp.Results)
	}
	// The pages partition the pool: no overlap, nothing missing.
	assert.Equal(t, total, collected)

	last, err := engine.Search(ctx, &Request{Query: "*", Page: 3, PerPage: 20})
	require.NoError(t, err)
	assert.Len(t, last.Results, 6)
	assert.False(t, last.Pagination.HasNext)
	assert.True(t, last.Pagination.HasPrevious)
}

func TestSearchPageBeyondEnd(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "users", Page: 99})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Positive(t, resp.Pagination.TotalResults)
}

func TestSearchPerPageClamped(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "*", PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPerPage, resp.Pagination.PerPage)

	resp, err = engine.Search(context.Background(), &Request{Query: "*"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPerPage, resp.Pagination.PerPage)
}

func TestSearchEmptyQuery(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotEmpty(t, resp.Warnings)
}

func TestSearchStopWordOnlyQuery(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "the of a"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Contains(t, resp.Warnings, "query contains only stop-words")
}

func TestSearchTypoGetsSuggestion(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "attachmnt"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Suggestions)
	found := false
	for _, s := range resp.Suggestions {
		if s.Category == SuggestTypoFix && s.Query == "attachment" {
			found = true
		}
	}
	assert.True(t, found, "expected typo fix suggestion, got %+v", resp.Suggestions)
}

func TestSearchSynonymExpansion(t *testing.T) {
	engine := newTestEngine(t)

	// "customer" is a synonym of "user"; the orders summary mentions
	// customer, and the user endpoints match through expansion.
	resp, err := engine.Search(context.Background(), &Request{Query: "customer", PerPage: 100})
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, r := range resp.Results {
		ids[r.EndpointID] = true
	}
	assert.True(t, ids["GET:/orders"] || ids["GET:/users"])
}

func TestSearchSummaryCoversWholePool(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{Query: "*", PerPage: 5})
	require.NoError(t, err)
	totalByMethod := 0
	for _, n := range resp.Summary.ResultsByMethod {
		totalByMethod += n
	}
	assert.Equal(t, resp.Pagination.TotalResults, totalByMethod)
}

func TestSearchComplexityFilter(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), &Request{
		Query:   "*",
		Filters: Filters{Complexity: ComplexitySimple},
		PerPage: 100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, ComplexitySimple, r.Complexity)
	}
}

func TestCacheKeyGenerationBound(t *testing.T) {
	a := cacheKey("gen_1", "users", Filters{}, 1, 10)
	b := cacheKey("gen_2", "users", Filters{}, 1, 10)
	assert.NotEqual(t, a, b)
}

func TestCacheEviction(t *testing.T) {
	cache := newQueryCache(10, 0)
	for i := 0; i < 11; i++ {
		cache.put(fmt.Sprintf("key-%d", i), &Response{})
	}
	// At capacity the oldest fifth is dropped before inserting.
	assert.LessOrEqual(t, cache.len(), 10)
	_, ok := cache.get("key-0")
	assert.False(t, ok)
	_, ok = cache.get("key-10")
	assert.True(t, ok)
}

func TestNormalizedKeyTextOrderInsensitive(t *testing.T) {
	a := Parse("users orders")
	b := Parse("orders users")
	assert.Equal(t,
		normalizedKeyText(a, NormalizeTerms(a.FreeTerms)),
		normalizedKeyText(b, NormalizeTerms(b.FreeTerms)))
}
