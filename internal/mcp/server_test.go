package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/index"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/spec"
	"openapi-mcp-server/internal/storage"
)

const mcpTestSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Petstore", "version": "1.0.0", "description": "A sample pet store"},
  "servers": [{"url": "https://petstore.example.com/v1"}],
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "summary": "List all pets",
        "tags": ["pets"],
        "parameters": [
          {"name": "limit", "in": "query", "schema": {"type": "integer"}}
        ],
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
        "security": [{"bearerAuth": []}],
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
    "securitySchemes": {
      "bearerAuth": {"type": "http", "scheme": "bearer", "bearerFormat": "JWT"}
    },
    "schemas": {
      "Pet": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "integer", "format": "int64"},
          "name": {"type": "string"},
          "category": {"$ref": "#/components/schemas/Category"}
        }
      },
      "Category": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "parent": {"$ref": "#/components/schemas/Category"}
        }
      }
    }
  }
}`

func newTestServer(t *testing.T) *APIServer {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(root, "mcp_server.db")
	cfg.Search.IndexDirectory = filepath.Join(root, "search_index")

	store, err := storage.Open(context.Background(), cfg.Database, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	parsed, err := spec.ParseDocument([]byte(mcpTestSpec))
	require.NoError(t, err)
	api, _, err := spec.Normalize(parsed, spec.Options{})
	require.NoError(t, err)
	catalog := category.NewEngine(nil).Classify(api)
	_, err = store.Ingest(context.Background(), api, catalog)
	require.NoError(t, err)

	generations, err := index.NewGenerations(cfg.Search.IndexDirectory)
	require.NoError(t, err)
	builder := index.NewBuilder(generations, 0, nil)
	docs := make([]*index.SearchDocument, 0, len(api.Endpoints))
	for _, e := range api.Endpoints {
		docs = append(docs, index.BuildDocument(e))
	}
	stats, err := builder.Build(context.Background(), docs)
	require.NoError(t, err)
	require.NoError(t, generations.Activate(stats.Generation))

	reader, err := index.OpenReader(generations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	engine := search.NewEngine(reader, cfg.Search, nil)
	return NewAPIServer(cfg, store, reader, engine, nil)
}

func TestSearchEndpointsTool(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleSearchEndpoints(context.Background(), map[string]interface{}{
		"query": "pets",
	})
	require.NoError(t, err)
	resp, ok := result.(*search.Response)
	require.True(t, ok)
	assert.Len(t, resp.Results, 3)
}

func TestSearchEndpointsMethodFilter(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleSearchEndpoints(context.Background(), map[string]interface{}{
		"query":  "pets",
		"method": "POST",
	})
	require.NoError(t, err)
	resp := result.(*search.Response)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "POST:/pets", resp.Results[0].EndpointID)
}

func TestSearchEndpointsValidation(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.handleSearchEndpoints(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeInput))

	_, err = srv.handleSearchEndpoints(context.Background(), map[string]interface{}{
		"query": "pets", "limit": float64(500),
	})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeInput))
}

func TestGetSchemaTool(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleGetSchema(context.Background(), map[string]interface{}{
		"schema_name": "Pet",
	})
	require.NoError(t, err)
	out := result.(map[string]interface{})
	assert.Equal(t, "Pet", out["name"])
	assert.Equal(t, "object", out["type"])
	assert.Equal(t, []string{"id", "name"}, out["required_fields"])
	assert.Equal(t, 3, out["properties_count"])

	definition := out["definition"].(map[string]interface{})
	assert.Equal(t, "object", definition["type"])
	props := definition["properties"].(map[string]interface{})
	require.Contains(t, props, "category")

	// With resolve_refs the Category reference is expanded inline, and its
	// self-reference terminates with a circular marker.
	categoryProp := props["category"].(map[string]interface{})
	assert.Equal(t, "object", categoryProp["type"])
	parent := categoryProp["properties"].(map[string]interface{})["parent"].(map[string]interface{})
	assert.Equal(t, true, parent["circular"])
}

func TestGetSchemaUnresolved(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleGetSchema(context.Background(), map[string]interface{}{
		"schema_name":  "Pet",
		"resolve_refs": false,
	})
	require.NoError(t, err)
	definition := result.(map[string]interface{})["definition"].(map[string]interface{})
	categoryProp := definition["properties"].(map[string]interface{})["category"].(map[string]interface{})
	assert.Equal(t, "Category", categoryProp["$ref"])
}

func TestGetSchemaNotFoundWithSuggestions(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.handleGetSchema(context.Background(), map[string]interface{}{
		"schema_name": "pet",
	})
	require.Error(t, err)
	require.True(t, apierr.IsCode(err, apierr.CodeNotFound))

	typed, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, []string{"Pet"}, typed.Details["similar_schemas"])
}

func TestGetExampleCurl(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleGetExample(context.Background(), map[string]interface{}{
		"endpoint_id": "POST:/pets",
	})
	require.NoError(t, err)
	example := result.(*Example)
	assert.Equal(t, "curl", example.Language)
	assert.Equal(t, "POST", example.Method)
	assert.Equal(t, "/pets", example.Path)
	assert.Contains(t, example.Code, "curl -X POST 'https://petstore.example.com/v1/pets'")
	assert.Contains(t, example.Code, "Content-Type: application/json")
	assert.Contains(t, example.Code, "Authorization: Bearer <your-token>")
	assert.Contains(t, example.Code, `"name"`)
	assert.Equal(t, []string{"bearerAuth"}, example.AuthSchemes)
}

func TestGetExamplePathParameters(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleGetExample(context.Background(), map[string]interface{}{
		"endpoint_id": "GET:/pets/{petId}",
		"language":    "python",
	})
	require.NoError(t, err)
	example := result.(*Example)
	assert.Contains(t, example.Code, "requests.get")
	assert.Contains(t, example.Code, "/pets/example-petId")
	assert.NotContains(t, example.Code, "{petId}")
}

func TestGetExampleWithoutAuth(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleGetExample(context.Background(), map[string]interface{}{
		"endpoint_id":  "POST:/pets",
		"language":     "javascript",
		"include_auth": false,
	})
	require.NoError(t, err)
	example := result.(*Example)
	assert.Contains(t, example.Code, "await fetch")
	assert.NotContains(t, example.Code, "Authorization")
}

func TestGetExampleValidation(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.handleGetExample(context.Background(), map[string]interface{}{
		"endpoint_id": "GET:/pets", "language": "rust",
	})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeInput))

	_, err = srv.handleGetExample(context.Background(), map[string]interface{}{
		"endpoint_id": "GET:/ghost",
	})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))
}

func TestSearchEndpointsWireFields(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleSearchEndpoints(context.Background(), map[string]interface{}{
		"query": "pets", "method": "GET",
	})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded struct {
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotEmpty(t, decoded.Results)

	var listPets map[string]interface{}
	for _, item := range decoded.Results {
		for _, key := range []string{"id", "path", "method", "operationId", "parameters", "responses"} {
			assert.Contains(t, item, key)
		}
		if item["id"] == "GET:/pets" {
			listPets = item
		}
	}
	require.NotNil(t, listPets)
	assert.Equal(t, "/pets", listPets["path"])
	assert.Equal(t, "listPets", listPets["operationId"])
	assert.Equal(t, float64(1), listPets["parameters"])
	assert.Equal(t, float64(1), listPets["responses"])
}

func TestGetExampleWireFields(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleGetExample(context.Background(), map[string]interface{}{
		"endpoint_id": "POST:/pets",
	})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "POST:/pets", decoded["endpoint_id"])
	assert.Equal(t, "POST", decoded["method"])
	assert.Equal(t, "/pets", decoded["path"])
	code, ok := decoded["example"].(string)
	require.True(t, ok)
	assert.Contains(t, code, "curl -X POST")
	assert.NotContains(t, decoded, "code")
}

func TestResourceAPIInfo(t *testing.T) {
	srv := newTestServer(t)

	content, err := srv.handleResourceRead(context.Background(), ResourceAPIInfo)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Contains(t, content[0].Text, `"Petstore"`)
	assert.Contains(t, content[0].Text, `"endpoint_count": 3`)
}

func TestResourceHealth(t *testing.T) {
	srv := newTestServer(t)

	content, err := srv.handleResourceRead(context.Background(), ResourceHealth)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Contains(t, content[0].Text, `"status": "healthy"`)
	assert.Contains(t, content[0].Text, `"document_count": 3`)
}

func TestResourceUnknown(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.handleResourceRead(context.Background(), "swagger://bogus")
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))
}

func TestGuardTimesOut(t *testing.T) {
	srv := newTestServer(t)
	srv.timeout = 20 * time.Millisecond

	slow := srv.guard("slow", func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := slow(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeTimeout))
}

func TestAdmissionGateOverload(t *testing.T) {
	gate := newAdmissionGate(1, 1)
	require.NoError(t, gate.acquire(context.Background()))

	// Second request queues; fill the queue from another goroutine, then a
	// third request is rejected immediately.
	queued := make(chan error, 1)
	go func() {
		queued <- gate.acquire(context.Background())
	}()

	// Wait for the queue slot to be taken.
	deadline := time.Now().Add(time.Second)
	for len(gate.queue) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	err := gate.acquire(context.Background())
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeOverloaded))

	gate.release()
	require.NoError(t, <-queued)
	gate.release()
	assert.True(t, gate.drain(time.Second))
}

func TestExampleRendersAllLanguages(t *testing.T) {
	srv := newTestServer(t)
	for _, language := range []string{"curl", "javascript", "python", "typescript"} {
		result, err := srv.handleGetExample(context.Background(), map[string]interface{}{
			"endpoint_id": "GET:/pets",
			"language":    language,
		})
		require.NoError(t, err, language)
		example := result.(*Example)
		assert.NotEmpty(t, example.Code, language)
		assert.True(t, strings.Contains(example.Code, "petstore.example.com"), language)
	}
}
