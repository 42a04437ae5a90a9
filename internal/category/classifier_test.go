package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/spec"
)

func endpoint(id, path, method string, tags []string, operationID string) *spec.Endpoint {
	return &spec.Endpoint{
		ID:          id,
		Path:        path,
		Method:      method,
		Tags:        tags,
		OperationID: operationID,
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "user-management", Slug("User Management"))
	assert.Equal(t, "pets", Slug("Pets"))
	assert.Equal(t, "a-b-c", Slug("a/B_c"))
	assert.Equal(t, "", Slug("  "))
}

func TestTagWinsOverEverything(t *testing.T) {
	api := &spec.NormalizedAPI{
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/users", "/users", "GET", []string{"Account Ops", "other"}, "listUsers"),
		},
	}
	NewEngine(nil).Classify(api)
	assert.Equal(t, "account-ops", api.Endpoints[0].Category)
	assert.Equal(t, "Account Ops", api.Endpoints[0].CategoryDisplay)
}

func TestTagDefinitionSuppliesDisplayName(t *testing.T) {
	api := &spec.NormalizedAPI{
		Tags: []spec.Tag{
			{Name: "Pet Store", Description: "Everything about pets"},
		},
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/pets", "/pets", "GET", []string{"pet store"}, ""),
		},
	}
	NewEngine(nil).Classify(api)
	assert.Equal(t, "pet-store", api.Endpoints[0].Category)
	assert.Equal(t, "Pet Store", api.Endpoints[0].CategoryDisplay)
}

func TestOperationIDResourceNoun(t *testing.T) {
	tests := []struct {
		operationID string
		want        string
	}{
		{"listUsers", "users"},
		{"create_order_item", "order"},
		{"get-payment-status", "payment"},
		{"fetchAll", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resourceNoun(tt.operationID), tt.operationID)
	}
}

func TestPathSegmentFallback(t *testing.T) {
	api := &spec.NormalizedAPI{
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/api/v1/invoices/{id}", "/api/v1/invoices/{id}", "GET", nil, ""),
		},
	}
	NewEngine(nil).Classify(api)
	assert.Equal(t, "invoices", api.Endpoints[0].Category)
	assert.Equal(t, "Invoices", api.Endpoints[0].CategoryDisplay)
}

func TestUncategorizedFallback(t *testing.T) {
	api := &spec.NormalizedAPI{
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/", "/", "GET", nil, ""),
		},
	}
	NewEngine(nil).Classify(api)
	assert.Equal(t, Uncategorized, api.Endpoints[0].Category)
}

func TestFirstMeaningfulSegmentSkipsVersions(t *testing.T) {
	assert.Equal(t, "users", FirstMeaningfulSegment("/api/v2/users"))
	assert.Equal(t, "orders", FirstMeaningfulSegment("/v1/orders/{id}"))
	assert.Equal(t, "", FirstMeaningfulSegment("/api/v1"))
}

func TestCatalogOrderingAndMethodDistribution(t *testing.T) {
	api := &spec.NormalizedAPI{
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/pets", "/pets", "GET", []string{"pets"}, ""),
			endpoint("POST:/pets", "/pets", "POST", []string{"pets"}, ""),
			endpoint("GET:/owners", "/owners", "GET", []string{"owners"}, ""),
		},
	}
	catalog := NewEngine(nil).Classify(api)

	require.Len(t, catalog.Categories, 2)
	assert.Equal(t, "pets", catalog.Categories[0].Key)
	assert.Equal(t, 2, catalog.Categories[0].EndpointCount)
	assert.Equal(t, map[string]int{"GET": 1, "POST": 1}, catalog.Categories[0].Methods)
	assert.Equal(t, "owners", catalog.Categories[1].Key)
}

func TestTagGroupsAssignment(t *testing.T) {
	api := &spec.NormalizedAPI{
		TagGroups: []spec.TagGroup{
			{Name: "Core", Tags: []string{"pets"}},
		},
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/pets", "/pets", "GET", []string{"pets"}, ""),
			endpoint("GET:/misc", "/misc", "GET", []string{"misc"}, ""),
		},
	}
	catalog := NewEngine(nil).Classify(api)

	pets := catalog.Get("pets")
	require.NotNil(t, pets)
	assert.Equal(t, "Core", pets.Group)

	// ungrouped categories land in the synthetic group once any group exists
	misc := catalog.Get("misc")
	require.NotNil(t, misc)
	assert.Equal(t, "Other", misc.Group)
}

func TestNoSyntheticGroupWithoutGroups(t *testing.T) {
	api := &spec.NormalizedAPI{
		Endpoints: []*spec.Endpoint{
			endpoint("GET:/pets", "/pets", "GET", []string{"pets"}, ""),
		},
	}
	catalog := NewEngine(nil).Classify(api)
	assert.Empty(t, catalog.Get("pets").Group)
}
