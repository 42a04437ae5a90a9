package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"

	"openapi-mcp-server/internal/apierr"
)

// Resource URIs served by the server.
const (
	ResourceAPIInfo = "swagger://api-info"
	ResourceHealth  = "swagger://health"
)

func (s *APIServer) handleResourceRead(ctx context.Context, uri string) ([]protocol.Content, error) {
	var payload interface{}
	var err error

	switch uri {
	case ResourceAPIInfo:
		payload, err = s.apiInfo(ctx)
	case ResourceHealth:
		payload, err = s.health(ctx)
	default:
		return nil, apierr.NewNotFound("resource", uri)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, apierr.NewInternal("failed to encode resource", err, "")
	}
	return []protocol.Content{{Type: "text", Text: string(data)}}, nil
}

func (s *APIServer) apiInfo(ctx context.Context) (interface{}, error) {
	info, err := s.store.GetAPIInfo(ctx)
	if err != nil {
		return nil, err
	}
	endpoints, err := s.store.EndpointCount(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"title":              info.Title,
		"version":            info.Version,
		"dialect":            info.Dialect,
		"description":        info.Description,
		"servers":            info.Servers,
		"contact":            info.Contact,
		"license":            info.License,
		"specification_hash": info.SpecHash,
		"source_path":        info.SourcePath,
		"endpoint_count":     endpoints,
	}, nil
}

func (s *APIServer) health(ctx context.Context) (interface{}, error) {
	storeHealth, err := s.store.CheckHealth(ctx)
	if err != nil {
		return nil, err
	}

	indexStatus := map[string]interface{}{"available": false}
	if s.reader != nil {
		if docs, err := s.reader.DocCount(); err == nil {
			indexStatus = map[string]interface{}{
				"available":      true,
				"generation":     s.reader.Generation(),
				"document_count": docs,
			}
		}
	}

	return map[string]interface{}{
		"status":        "healthy",
		"checked_at":    time.Now().UTC().Format(time.RFC3339),
		"database":      storeHealth,
		"search_index":  indexStatus,
		"cache_entries": s.engine.CacheSize(),
	}, nil
}
