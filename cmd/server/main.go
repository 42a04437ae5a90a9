// server converts an OpenAPI/Swagger specification into a queryable MCP
// server. With -spec it runs the conversion pipeline first; it then serves
// the searchEndpoints, getSchema, and getExample tools over stdio or HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"

	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/convert"
	"openapi-mcp-server/internal/index"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/mcp"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/storage"
)

func main() {
	var (
		specPath    = flag.String("spec", "", "OpenAPI/Swagger file to convert before serving")
		convertOnly = flag.Bool("convert-only", false, "Run the conversion and exit without serving")
		mode        = flag.String("mode", "stdio", "Server mode: stdio or http")
		addr        = flag.String("addr", ":9080", "HTTP server address (when mode=http)")
	)
	flag.Parse()

	if err := run(*specPath, *convertOnly, *mode, *addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(specPath string, convertOnly bool, mode, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Stdout carries the MCP stdio transport; logs go to stderr through a
	// buffered writer so log writes never block query handling.
	buffered := logging.NewBufferedWriter(os.Stderr, cfg.Logging.BufferSize)
	defer func() { _ = buffered.Close() }()
	logger := logging.NewLoggerWithWriter(logging.ParseLogLevel(cfg.Logging.Level), buffered)
	logging.SetDefaultLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database, logger.WithComponent("storage"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	generations, err := index.NewGenerations(cfg.Search.IndexDirectory)
	if err != nil {
		return err
	}

	if specPath != "" {
		pipeline := convert.NewPipeline(store, generations, cfg, logger.WithComponent("convert"))
		result, err := pipeline.Run(ctx, specPath)
		if err != nil {
			return fmt.Errorf("convert %s: %w", specPath, err)
		}
		logger.Info("specification ready",
			"title", result.Title, "version", result.Version,
			"endpoints", result.Endpoints, "skipped", result.Skipped)
	}
	if convertOnly {
		return nil
	}

	reader, err := index.OpenReader(generations)
	if err != nil {
		return fmt.Errorf("open search index (run with -spec first): %w", err)
	}
	defer func() { _ = reader.Close() }()

	engine := search.NewEngine(reader, cfg.Search, logger.WithComponent("search"))
	apiServer := mcp.NewAPIServer(cfg, store, reader, engine, logger.WithComponent("mcp"))
	mcpServer := apiServer.GetMCPServer()

	switch mode {
	case "stdio":
		logger.Info("starting MCP server on stdio")
		mcpServer.SetTransport(transport.NewStdioTransport())
		if err := mcpServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case "http":
		logger.Info("starting MCP server over HTTP", "addr", addr)
		if err := serveHTTP(ctx, mcpServer, addr); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	default:
		return fmt.Errorf("invalid mode %q, use 'stdio' or 'http'", mode)
	}

	return apiServer.Close()
}

// serveHTTP exposes the MCP JSON-RPC surface at /mcp, an SSE keepalive
// stream at /sse, and a health probe at /healthz.
func serveHTTP(ctx context.Context, mcpServer *server.Server, addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req protocol.JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON-RPC request", http.StatusBadRequest)
			return
		}
		resp := mcpServer.HandleRequest(r.Context(), &req)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logging.Error("failed to encode response", "error", err)
		}
	})

	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		fmt.Fprintf(w, "data: {\"type\":\"connected\",\"server\":\"openapi-mcp-server\"}\n\n")
		flusher.Flush()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Fprintf(w, "data: {\"type\":\"heartbeat\",\"timestamp\":\"%s\"}\n\n",
					time.Now().UTC().Format(time.RFC3339))
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","server":"openapi-mcp-server"}`)
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
