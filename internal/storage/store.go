// Package storage projects the normalized API onto the SQLite relational
// store: typed tables, FTS virtual tables maintained by triggers, and the
// forward-only migration history. The store is single-writer at conversion
// time and many-reader while serving.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/spec"
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	logger logging.Logger
}

// Open opens (creating if needed) the SQLite database in WAL mode with
// foreign keys enforced and the configured busy timeout, and applies any
// pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.WithComponent("storage")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, apierr.NewStorage("failed to create database directory", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_sync=NORMAL&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path, cfg.TimeoutSeconds*1000)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apierr.NewStorage("failed to open database", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apierr.NewStorage("failed to connect to database", err)
	}

	s := &Store{db: db, path: cfg.Path, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// APIRow is one row of the apis table.
type APIRow struct {
	ID       int64
	Title    string
	Version  string
	Dialect  string
	SpecHash string
}

// FindAPIByHash returns the stored document with the given content hash, or
// nil when none exists.
func (s *Store) FindAPIByHash(ctx context.Context, hash string) (*APIRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, version, dialect, specification_hash FROM apis WHERE specification_hash = ?`, hash)
	var api APIRow
	err := row.Scan(&api.ID, &api.Title, &api.Version, &api.Dialect, &api.SpecHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.NewStorage("failed to look up specification by hash", err)
	}
	return &api, nil
}

// IngestResult summarizes one write pipeline run.
type IngestResult struct {
	APIID     int64 `json:"api_id"`
	Replaced  bool  `json:"replaced"`
	Endpoints int   `json:"endpoints"`
	Schemas   int   `json:"schemas"`
}

// Ingest writes one normalized document and its category catalog. All rows
// land in a single transaction ordered apis, schemas (dependency-ascending),
// security schemes, endpoints, dependency edges, categories; the FTS
// triggers fire during the endpoint and schema inserts. Any failure rolls
// the whole ingest back. A document with the same title and version but a
// different hash replaces the old rows inside the same transaction.
func (s *Store) Ingest(ctx context.Context, api *spec.NormalizedAPI, catalog *category.Catalog) (*IngestResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.NewStorage("failed to begin ingest transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	result := &IngestResult{}

	var oldID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM apis WHERE title = ? AND version = ?`, api.Title, api.Version).Scan(&oldID)
	switch {
	case err == nil:
		// Cascade removes endpoints, schemas, schemes, edges, categories.
		if _, err := tx.ExecContext(ctx, `DELETE FROM apis WHERE id = ?`, oldID); err != nil {
			return nil, apierr.NewStorage("failed to replace previous specification", err)
		}
		result.Replaced = true
	case err != sql.ErrNoRows:
		return nil, apierr.NewStorage("failed to check for previous specification", err)
	}

	apiID, err := insertAPI(ctx, tx, api)
	if err != nil {
		return nil, err
	}
	result.APIID = apiID

	schemaIDs, err := insertSchemas(ctx, tx, apiID, api)
	if err != nil {
		return nil, err
	}
	result.Schemas = len(schemaIDs)

	if err := insertSecuritySchemes(ctx, tx, apiID, api); err != nil {
		return nil, err
	}

	endpointIDs, err := insertEndpoints(ctx, tx, apiID, api)
	if err != nil {
		return nil, err
	}
	result.Endpoints = len(endpointIDs)

	if err := insertDependencyEdges(ctx, tx, api, endpointIDs, schemaIDs); err != nil {
		return nil, err
	}
	if err := insertCategories(ctx, tx, apiID, catalog); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.NewStorage("failed to commit ingest transaction", err)
	}
	s.logger.InfoContext(ctx, "specification ingested",
		"api_id", apiID, "endpoints", result.Endpoints, "schemas", result.Schemas,
		"replaced", result.Replaced)
	return result, nil
}

func insertAPI(ctx context.Context, tx *sql.Tx, api *spec.NormalizedAPI) (int64, error) {
	servers, err := marshalJSON(api.Servers)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO apis (title, version, dialect, description, servers, contact, license,
	specification_hash, source_path, file_size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		api.Title, api.Version, api.Dialect, api.Description, servers,
		api.Contact, api.License, api.SpecHash, api.SourcePath, api.FileSize)
	if err != nil {
		return 0, apierr.NewStorage("failed to insert api row", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apierr.NewStorage("failed to read api row id", err)
	}
	return id, nil
}

// schemaInsertOrder sorts schema names dependency-ascending so a schema's
// outbound references are already present when its row lands. Cycles are
// broken by name order.
func schemaInsertOrder(schemas map[string]*spec.Schema) []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make([]string, 0, len(names))
	placed := make(map[string]bool, len(names))
	visiting := make(map[string]bool, len(names))

	var visit func(name string)
	visit = func(name string) {
		if placed[name] || visiting[name] {
			return
		}
		visiting[name] = true
		if schema, ok := schemas[name]; ok {
			for _, dep := range schema.Dependencies {
				if dep != name {
					visit(dep)
				}
			}
		}
		visiting[name] = false
		if !placed[name] {
			placed[name] = true
			ordered = append(ordered, name)
		}
	}
	for _, name := range names {
		visit(name)
	}
	return ordered
}

func insertSchemas(ctx context.Context, tx *sql.Tx, apiID int64, api *spec.NormalizedAPI) (map[string]int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO schemas (api_id, name, type, format, title, description, definition,
	dependencies, cycles, reference_count, deprecated, searchable_text, property_names)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, apierr.NewStorage("failed to prepare schema insert", err)
	}
	defer stmt.Close()

	ids := make(map[string]int64, len(api.Schemas))
	for _, name := range schemaInsertOrder(api.Schemas) {
		schema := api.Schemas[name]
		definition, err := marshalJSON(schema)
		if err != nil {
			return nil, err
		}
		deps, err := marshalJSON(schema.Dependencies)
		if err != nil {
			return nil, err
		}
		cycles, err := marshalJSON(schema.Cycles)
		if err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx, apiID, name, schema.Type, schema.Format,
			schema.Title, schema.Description, definition, deps, cycles,
			schema.ReferenceCount, boolInt(schema.Deprecated),
			schema.SearchableText, strings.Join(schema.PropertyNames, " "))
		if err != nil {
			return nil, apierr.NewStorage(fmt.Sprintf("failed to insert schema %q", name), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, apierr.NewStorage("failed to read schema row id", err)
		}
		ids[name] = id
	}
	return ids, nil
}

func insertSecuritySchemes(ctx context.Context, tx *sql.Tx, apiID int64, api *spec.NormalizedAPI) error {
	names := make([]string, 0, len(api.SecuritySchemes))
	for name := range api.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		scheme := api.SecuritySchemes[name]
		definition, err := marshalJSON(scheme)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO security_schemes (api_id, name, type, definition, reference_count)
VALUES (?, ?, ?, ?, ?)`,
			apiID, name, scheme.Type, definition, scheme.ReferenceCount); err != nil {
			return apierr.NewStorage(fmt.Sprintf("failed to insert security scheme %q", name), err)
		}
	}
	return nil
}

func insertEndpoints(ctx context.Context, tx *sql.Tx, apiID int64, api *spec.NormalizedAPI) (map[string]int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO endpoints (api_id, endpoint_key, path, method, operation_id, summary,
	description, tags, parameters, request_body, responses, security, callbacks,
	extensions, deprecated, category, category_display, category_group,
	schema_dependencies, security_used, searchable_text, parameter_names,
	response_codes, content_types)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, apierr.NewStorage("failed to prepare endpoint insert", err)
	}
	defer stmt.Close()

	ids := make(map[string]int64, len(api.Endpoints))
	for _, e := range api.Endpoints {
		tags, err := marshalJSON(e.Tags)
		if err != nil {
			return nil, err
		}
		params, err := marshalJSON(e.Parameters)
		if err != nil {
			return nil, err
		}
		body, err := marshalJSON(e.RequestBody)
		if err != nil {
			return nil, err
		}
		responses, err := marshalJSON(e.Responses)
		if err != nil {
			return nil, err
		}
		security, err := marshalJSON(e.Security)
		if err != nil {
			return nil, err
		}
		callbacks, err := marshalJSON(e.Callbacks)
		if err != nil {
			return nil, err
		}
		extensions, err := marshalJSON(e.Extensions)
		if err != nil {
			return nil, err
		}
		deps, err := marshalJSON(e.SchemaDependencies)
		if err != nil {
			return nil, err
		}
		securityUsed, err := marshalJSON(e.SecurityUsed)
		if err != nil {
			return nil, err
		}

		res, err := stmt.ExecContext(ctx, apiID, e.ID, e.Path, e.Method,
			e.OperationID, e.Summary, e.Description, tags, params, body,
			responses, security, callbacks, extensions, boolInt(e.Deprecated),
			e.Category, e.CategoryDisplay, e.CategoryGroup, deps, securityUsed,
			e.SearchableText, strings.Join(e.ParameterNames, " "),
			strings.Join(e.ResponseCodes, " "), strings.Join(e.ContentTypes, " "))
		if err != nil {
			return nil, apierr.NewStorage(fmt.Sprintf("failed to insert endpoint %s", e.ID), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, apierr.NewStorage("failed to read endpoint row id", err)
		}
		ids[e.ID] = id
	}
	return ids, nil
}

func insertDependencyEdges(ctx context.Context, tx *sql.Tx, api *spec.NormalizedAPI, endpointIDs, schemaIDs map[string]int64) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO endpoint_dependencies (endpoint_id, schema_id, role) VALUES (?, ?, ?)`)
	if err != nil {
		return apierr.NewStorage("failed to prepare dependency insert", err)
	}
	defer stmt.Close()

	for _, e := range api.Endpoints {
		for _, edge := range e.DependencyEdges {
			schemaID, ok := schemaIDs[edge.SchemaName]
			if !ok {
				// Already reported by the cross-reference validator.
				continue
			}
			if _, err := stmt.ExecContext(ctx, endpointIDs[e.ID], schemaID, edge.Role); err != nil {
				return apierr.NewStorage(
					fmt.Sprintf("failed to insert dependency %s -> %s", e.ID, edge.SchemaName), err)
			}
		}
	}
	return nil
}

func insertCategories(ctx context.Context, tx *sql.Tx, apiID int64, catalog *category.Catalog) error {
	if catalog == nil {
		return nil
	}
	for _, cat := range catalog.Categories {
		methods, err := marshalJSON(cat.Methods)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO endpoint_categories (api_id, category_key, display_name, group_name, endpoint_count, methods)
VALUES (?, ?, ?, ?, ?, ?)`,
			apiID, cat.Key, cat.DisplayName, cat.Group, cat.EndpointCount, methods); err != nil {
			return apierr.NewStorage(fmt.Sprintf("failed to insert category %q", cat.Key), err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", apierr.NewStorage("failed to encode row payload", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
