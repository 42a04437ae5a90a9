package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/spec"
)

const storeTestSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "summary": "List all pets",
        "tags": ["pets"],
        "responses": {
          "200": {
            "description": "A list of pets",
            "content": {
              "application/json": {
                "schema": {"type": "array", "items": {"$ref": "#/components/schemas/Pet"}}
              }
            }
          }
        }
      },
      "post": {
        "operationId": "createPet",
        "summary": "Create a pet",
        "tags": ["pets"],
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
        },
        "responses": {"201": {"description": "Created"}}
      }
    },
    "/pets/{petId}": {
      "get": {
        "operationId": "getPet",
        "summary": "Get a pet by id",
        "tags": ["pets"],
        "parameters": [
          {"name": "petId", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {
            "description": "A pet",
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
          }
        }
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "integer", "format": "int64"},
          "name": {"type": "string"},
          "tag": {"type": "string"}
        }
      }
    }
  }
}`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "mcp_server.db"),
		PoolSize:       5,
		TimeoutSeconds: 5,
	}
	store, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func normalizeTestSpec(t *testing.T, data string) (*spec.NormalizedAPI, *category.Catalog) {
	t.Helper()
	parsed, err := spec.ParseDocument([]byte(data))
	require.NoError(t, err)
	api, _, err := spec.Normalize(parsed, spec.Options{})
	require.NoError(t, err)
	catalog := category.NewEngine(nil).Classify(api)
	return api, catalog
}

func TestIngestAndQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	api, catalog := normalizeTestSpec(t, storeTestSpec)

	result, err := store.Ingest(ctx, api, catalog)
	require.NoError(t, err)
	assert.False(t, result.Replaced)
	assert.Equal(t, 3, result.Endpoints)
	assert.Equal(t, 1, result.Schemas)

	found, err := store.FindAPIByHash(ctx, api.SpecHash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Petstore", found.Title)

	schema, err := store.GetSchema(ctx, "Pet")
	require.NoError(t, err)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"id", "name"}, schema.Required)
	assert.Equal(t, 3, schema.ReferenceCount)

	endpoint, err := store.GetEndpoint(ctx, "GET:/pets/{petId}")
	require.NoError(t, err)
	assert.Equal(t, "getPet", endpoint.OperationID)
	require.Len(t, endpoint.Parameters, 1)
	assert.Equal(t, "petId", endpoint.Parameters[0].Name)
	assert.Equal(t, []string{"Pet"}, endpoint.SchemaDependencies)

	endpoints, err := store.ListEndpoints(ctx, result.APIID)
	require.NoError(t, err)
	assert.Len(t, endpoints, 3)

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["endpoints"])
	assert.Equal(t, int64(1), counts["schemas"])
	assert.Equal(t, int64(3), counts["endpoint_dependencies"])
	assert.Equal(t, int64(1), counts["endpoint_categories"])
}

func TestGetSchemaNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetSchema(context.Background(), "Ghost")
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))
}

func TestIngestReplacesSameTitleVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	api, catalog := normalizeTestSpec(t, storeTestSpec)

	first, err := store.Ingest(ctx, api, catalog)
	require.NoError(t, err)

	second, err := store.Ingest(ctx, api, catalog)
	require.NoError(t, err)
	assert.True(t, second.Replaced)
	assert.NotEqual(t, first.APIID, second.APIID)

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["apis"])
	assert.Equal(t, int64(3), counts["endpoints"])
}

func TestEndpointFTSTriggers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	api, catalog := normalizeTestSpec(t, storeTestSpec)
	_, err := store.Ingest(ctx, api, catalog)
	require.NoError(t, err)

	keys, err := store.SearchEndpointsFTS(ctx, "pets", 10)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	// The porter tokenizer stems "listing" and "list" to the same term.
	keys, err = store.SearchEndpointsFTS(ctx, "listing", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, keys)

	names, err := store.SimilarSchemaNames(ctx, "pet", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pet"}, names)
}

func TestCheckHealth(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	api, catalog := normalizeTestSpec(t, storeTestSpec)
	_, err := store.Ingest(ctx, api, catalog)
	require.NoError(t, err)

	health, err := store.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Positive(t, health.DBSizeBytes)
	assert.Equal(t, []int{1, 2}, health.Migrations)
	assert.Equal(t, int64(3), health.TableCounts["endpoints"])
}

func TestSchemaInsertOrder(t *testing.T) {
	schemas := map[string]*spec.Schema{
		"Order": {Name: "Order", Dependencies: []string{"Pet", "User"}},
		"Pet":   {Name: "Pet"},
		"User":  {Name: "User", Dependencies: []string{"Pet"}},
		"Node":  {Name: "Node", Dependencies: []string{"Node"}},
	}
	order := schemaInsertOrder(schemas)
	require.Len(t, order, 4)

	position := make(map[string]int, len(order))
	for i, name := range order {
		position[name] = i
	}
	assert.Less(t, position["Pet"], position["Order"])
	assert.Less(t, position["Pet"], position["User"])
	assert.Less(t, position["User"], position["Order"])
}
