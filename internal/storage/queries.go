package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/spec"
)

// GetSchema returns the named schema, decoded from its stored definition.
func (s *Store) GetSchema(ctx context.Context, name string) (*spec.Schema, error) {
	row := s.db.QueryRowContext(ctx, `SELECT definition FROM schemas WHERE name = ?`, name)
	var definition string
	if err := row.Scan(&definition); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NewNotFound("schema", name)
		}
		return nil, apierr.NewStorage(fmt.Sprintf("failed to load schema %q", name), err)
	}

	var schema spec.Schema
	if err := json.Unmarshal([]byte(definition), &schema); err != nil {
		return nil, apierr.NewStorage(fmt.Sprintf("failed to decode schema %q", name), err)
	}
	if schema.Name == "" {
		schema.Name = name
	}
	return &schema, nil
}

// GetEndpoint returns the endpoint with the given key ("METHOD:/path"),
// reassembled from its stored columns.
func (s *Store) GetEndpoint(ctx context.Context, key string) (*spec.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT endpoint_key, path, method, operation_id, summary, description, tags,
	parameters, request_body, responses, security, deprecated, category,
	schema_dependencies, security_used
FROM endpoints WHERE endpoint_key = ?`, key)

	var e spec.Endpoint
	var tags, params, body, responses, security, deps, securityUsed sql.NullString
	var deprecated int
	err := row.Scan(&e.ID, &e.Path, &e.Method, &e.OperationID, &e.Summary,
		&e.Description, &tags, &params, &body, &responses, &security,
		&deprecated, &e.Category, &deps, &securityUsed)
	if err == sql.ErrNoRows {
		return nil, apierr.NewNotFound("endpoint", key)
	}
	if err != nil {
		return nil, apierr.NewStorage(fmt.Sprintf("failed to load endpoint %s", key), err)
	}
	e.Deprecated = deprecated != 0

	if err := unmarshalColumn(tags, &e.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(params, &e.Parameters); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(body, &e.RequestBody); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(responses, &e.Responses); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(security, &e.Security); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(deps, &e.SchemaDependencies); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(securityUsed, &e.SecurityUsed); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEndpoints returns every endpoint of the given document, ordered by
// path then method, reusing the GetEndpoint column shape.
func (s *Store) ListEndpoints(ctx context.Context, apiID int64) ([]*spec.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint_key FROM endpoints WHERE api_id = ? ORDER BY path, method`, apiID)
	if err != nil {
		return nil, apierr.NewStorage("failed to list endpoints", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apierr.NewStorage("failed to scan endpoint key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.NewStorage("failed to iterate endpoint keys", err)
	}

	endpoints := make([]*spec.Endpoint, 0, len(keys))
	for _, key := range keys {
		e, err := s.GetEndpoint(ctx, key)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

// GetSecurityScheme returns the named scheme decoded from its definition.
func (s *Store) GetSecurityScheme(ctx context.Context, name string) (*spec.SecurityScheme, error) {
	row := s.db.QueryRowContext(ctx, `SELECT definition FROM security_schemes WHERE name = ?`, name)
	var definition string
	if err := row.Scan(&definition); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NewNotFound("security scheme", name)
		}
		return nil, apierr.NewStorage(fmt.Sprintf("failed to load security scheme %q", name), err)
	}
	var scheme spec.SecurityScheme
	if err := json.Unmarshal([]byte(definition), &scheme); err != nil {
		return nil, apierr.NewStorage(fmt.Sprintf("failed to decode security scheme %q", name), err)
	}
	return &scheme, nil
}

// APIInfo is the full document metadata row backing the api-info resource.
type APIInfo struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Version     string        `json:"version"`
	Dialect     string        `json:"dialect"`
	Description string        `json:"description,omitempty"`
	Servers     []spec.Server `json:"servers,omitempty"`
	Contact     string        `json:"contact,omitempty"`
	License     string        `json:"license,omitempty"`
	SpecHash    string        `json:"specification_hash"`
	SourcePath  string        `json:"source_path,omitempty"`
	FileSize    int64         `json:"file_size,omitempty"`
}

// GetAPIInfo returns the metadata of the most recently ingested document.
func (s *Store) GetAPIInfo(ctx context.Context) (*APIInfo, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, version, dialect, description, servers, contact, license,
	specification_hash, source_path, file_size
FROM apis ORDER BY id DESC LIMIT 1`)

	var info APIInfo
	var servers sql.NullString
	err := row.Scan(&info.ID, &info.Title, &info.Version, &info.Dialect,
		&info.Description, &servers, &info.Contact, &info.License,
		&info.SpecHash, &info.SourcePath, &info.FileSize)
	if err == sql.ErrNoRows {
		return nil, apierr.NewNotFound("api", "any")
	}
	if err != nil {
		return nil, apierr.NewStorage("failed to load api metadata", err)
	}
	if err := unmarshalColumn(servers, &info.Servers); err != nil {
		return nil, err
	}
	return &info, nil
}

// SimilarSchemaNames runs the schemas FTS table against the query and
// returns matching schema names in rank order. Used for near-miss
// suggestions when a schema lookup fails.
func (s *Store) SimilarSchemaNames(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT s.name FROM schemas_fts f JOIN schemas s ON s.id = f.rowid
WHERE schemas_fts MATCH ? ORDER BY rank LIMIT ?`, ftsQuote(query), limit)
	if err != nil {
		// An unparsable MATCH expression is a caller-input problem, not a
		// storage failure; return no suggestions.
		return nil, nil
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apierr.NewStorage("failed to scan schema name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SearchEndpointsFTS runs the in-database full-text index over endpoints.
// The keyword-weighted index is the primary search path; this serves audits
// and rebuild validation.
func (s *Store) SearchEndpointsFTS(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT e.endpoint_key FROM endpoints_fts f JOIN endpoints e ON e.id = f.rowid
WHERE endpoints_fts MATCH ? ORDER BY rank LIMIT ?`, ftsQuote(query), limit)
	if err != nil {
		return nil, apierr.NewStorage("endpoint full-text query failed", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apierr.NewStorage("failed to scan endpoint key", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ftsQuote wraps each whitespace token in double quotes so user text never
// reaches the MATCH parser as syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, field := range fields {
		fields[i] = `"` + strings.ReplaceAll(field, `"`, "") + `"`
	}
	return strings.Join(fields, " ")
}

// TableCounts reports per-table row counts.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	tables := []string{"apis", "endpoints", "schemas", "security_schemes",
		"endpoint_dependencies", "endpoint_categories"}
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, apierr.NewStorage(fmt.Sprintf("failed to count %s", table), err)
		}
		counts[table] = n
	}
	return counts, nil
}

// EndpointCount returns the number of endpoint rows for the document. Index
// build validation compares it against the document count of the weighted
// index.
func (s *Store) EndpointCount(ctx context.Context, apiID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints WHERE api_id = ?`, apiID).Scan(&n)
	if err != nil {
		return 0, apierr.NewStorage("failed to count endpoints", err)
	}
	return n, nil
}

// Health reports store health for the swagger://health resource.
type Health struct {
	TableCounts map[string]int64 `json:"table_counts"`
	DBSizeBytes int64            `json:"db_size_bytes"`
	Migrations  []int            `json:"migrations"`
}

// CheckHealth gathers table counts, database file size, and the applied
// migration versions.
func (s *Store) CheckHealth(ctx context.Context) (*Health, error) {
	counts, err := s.TableCounts(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	health := &Health{TableCounts: counts, Migrations: versions}
	if info, err := os.Stat(s.path); err == nil {
		health.DBSizeBytes = info.Size()
	}
	return health, nil
}

func unmarshalColumn(col sql.NullString, dst interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return apierr.NewStorage("failed to decode row column", err)
	}
	return nil
}
