// Package mcp exposes the converted specification over the Model Context
// Protocol: the searchEndpoints, getSchema, and getExample tools plus the
// swagger:// info and health resources.
package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/server"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/index"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/storage"
)

const serverName = "openapi-mcp-server"
const serverVersion = "1.0.0"

// APIServer wires the query engine and the relational store into an MCP
// server. Tool invocations pass through the admission gate and run under a
// per-invocation deadline.
type APIServer struct {
	cfg    *config.Config
	store  *storage.Store
	engine *search.Engine
	reader *index.Reader

	mcpServer *server.Server
	gate      *admissionGate
	timeout   time.Duration
	logger    logging.Logger
}

// NewAPIServer builds the MCP server and registers its tools and resources.
func NewAPIServer(cfg *config.Config, store *storage.Store, reader *index.Reader, engine *search.Engine, logger logging.Logger) *APIServer {
	if logger == nil {
		logger = logging.WithComponent("mcp")
	}
	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	s := &APIServer{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		reader:    reader,
		mcpServer: mcpsdk.NewServer(serverName, serverVersion),
		gate:      newAdmissionGate(cfg.Server.MaxConnections, cfg.Server.QueueSize),
		timeout:   timeout,
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// GetMCPServer returns the underlying protocol server for transport wiring.
func (s *APIServer) GetMCPServer() *server.Server { return s.mcpServer }

// Close drains in-flight requests within the configured grace period.
func (s *APIServer) Close() error {
	drainSecs := s.cfg.Server.ShutdownDrainSecs
	if drainSecs <= 0 {
		drainSecs = 30
	}
	if !s.gate.drain(time.Duration(drainSecs) * time.Second) {
		s.logger.Warn("shutdown drain period elapsed with requests still in flight")
	}
	return nil
}

type toolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// guard wraps a tool handler with admission control, the per-invocation
// deadline, trace correlation, and typed error logging.
func (s *APIServer) guard(name string, handler toolHandler) toolHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if err := s.gate.acquire(ctx); err != nil {
			s.logger.WarnContext(ctx, "tool invocation rejected", "tool", name, "error", err)
			return nil, err
		}
		defer s.gate.release()

		ctx = logging.WithTraceID(ctx, "")
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		started := time.Now()
		result, err := handler(ctx, params)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded && !apierr.IsCode(err, apierr.CodeTimeout) {
				err = apierr.NewTimeout(name, s.timeout)
			}
			s.logger.ErrorContext(ctx, "tool invocation failed",
				"tool", name, "code", string(apierr.CodeOf(err)), "error", err,
				"elapsed_ms", time.Since(started).Milliseconds())
			return nil, err
		}
		s.logger.DebugContext(ctx, "tool invocation complete",
			"tool", name, "elapsed_ms", time.Since(started).Milliseconds())
		return result, nil
	}
}

func (s *APIServer) registerTools() {
	s.mcpServer.AddTool(mcpsdk.NewTool(
		"searchEndpoints",
		"Search API endpoints by keyword, path, HTTP method, or natural-language description. Supports field qualifiers (method:GET, path:/users, auth:bearer, status:200), boolean operators (AND, OR, NOT), and '*' to list everything. Results are ranked, clustered by resource and method, and paginated.",
		mcpsdk.ObjectSchema("Endpoint search parameters", map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search text. Examples: 'create user', 'method:POST upload', 'orders NOT deprecated', '*'",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
				"description": "Restrict results to one HTTP method",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     100,
				"default":     10,
				"description": "Maximum number of results to return",
			},
		}, []string{"query"}),
	), mcpsdk.ToolHandlerFunc(s.guard("searchEndpoints", s.handleSearchEndpoints)))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"getSchema",
		"Get the definition of a named schema from the converted specification: type, properties, required fields, constraints, and composition. Referenced schemas can be resolved inline; cyclic references are marked rather than expanded.",
		mcpsdk.ObjectSchema("Schema lookup parameters", map[string]interface{}{
			"schema_name": map[string]interface{}{
				"type":        "string",
				"description": "Component schema name, e.g. 'Pet' or 'OrderList'",
			},
			"include_examples": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Include example values where the specification provides them",
			},
			"resolve_refs": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Expand referenced schemas inline instead of returning name handles",
			},
		}, []string{"schema_name"}),
	), mcpsdk.ToolHandlerFunc(s.guard("getSchema", s.handleGetSchema)))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"getExample",
		"Generate a ready-to-run request example for an endpoint in curl, JavaScript (fetch), Python (requests), or TypeScript. The example includes path and query parameters, a request body synthesized from the schema, and authentication scaffolding for the endpoint's security schemes.",
		mcpsdk.ObjectSchema("Example generation parameters", map[string]interface{}{
			"endpoint_id": map[string]interface{}{
				"type":        "string",
				"description": "Endpoint identifier as returned by searchEndpoints, e.g. 'GET:/pets/{petId}'",
			},
			"language": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"curl", "javascript", "python", "typescript"},
				"default":     "curl",
				"description": "Output language for the example",
			},
			"include_auth": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Include authentication headers for the endpoint's security schemes",
			},
		}, []string{"endpoint_id"}),
	), mcpsdk.ToolHandlerFunc(s.guard("getExample", s.handleGetExample)))
}

func (s *APIServer) registerResources() {
	s.mcpServer.AddResource(mcpsdk.NewResource(
		"swagger://api-info",
		"API Information",
		"Title, version, servers, and ingest metadata of the converted specification",
		"application/json",
	), mcpsdk.ResourceHandlerFunc(s.handleResourceRead))

	s.mcpServer.AddResource(mcpsdk.NewResource(
		"swagger://health",
		"Server Health",
		"Store table counts, database size, and search index generation status",
		"application/json",
	), mcpsdk.ResourceHandlerFunc(s.handleResourceRead))
}
