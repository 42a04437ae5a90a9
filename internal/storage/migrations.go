package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"openapi-mcp-server/internal/apierr"
)

// Migration is one forward-only schema change. Rollback SQL is recorded for
// out-of-band recovery but never executed by the migrator.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Checksum returns the stable fingerprint of the migration body.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

// migrations is the ordered schema history. Never edit an entry after it
// has shipped; append a new version instead.
var migrations = []Migration{
	{
		Version:     1,
		Description: "base relational schema",
		Up: `
CREATE TABLE IF NOT EXISTS apis (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	version TEXT NOT NULL,
	dialect TEXT NOT NULL,
	description TEXT,
	servers TEXT,
	contact TEXT,
	license TEXT,
	specification_hash TEXT NOT NULL,
	source_path TEXT,
	file_size INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_apis_hash ON apis(specification_hash);
CREATE INDEX IF NOT EXISTS idx_apis_title_version ON apis(title, version);

CREATE TABLE IF NOT EXISTS endpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
	endpoint_key TEXT NOT NULL,
	path TEXT NOT NULL,
	method TEXT NOT NULL,
	operation_id TEXT,
	summary TEXT,
	description TEXT,
	tags TEXT,
	parameters TEXT,
	request_body TEXT,
	responses TEXT,
	security TEXT,
	callbacks TEXT,
	extensions TEXT,
	deprecated INTEGER NOT NULL DEFAULT 0,
	category TEXT,
	category_display TEXT,
	category_group TEXT,
	schema_dependencies TEXT,
	security_used TEXT,
	searchable_text TEXT,
	parameter_names TEXT,
	response_codes TEXT,
	content_types TEXT,
	UNIQUE(api_id, path, method)
);
CREATE INDEX IF NOT EXISTS idx_endpoints_api ON endpoints(api_id);
CREATE INDEX IF NOT EXISTS idx_endpoints_method ON endpoints(method);
CREATE INDEX IF NOT EXISTS idx_endpoints_path ON endpoints(path);
CREATE INDEX IF NOT EXISTS idx_endpoints_operation ON endpoints(operation_id);
CREATE INDEX IF NOT EXISTS idx_endpoints_deprecated ON endpoints(deprecated);

CREATE TABLE IF NOT EXISTS schemas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	type TEXT,
	format TEXT,
	title TEXT,
	description TEXT,
	definition TEXT NOT NULL,
	dependencies TEXT,
	cycles TEXT,
	reference_count INTEGER NOT NULL DEFAULT 0,
	deprecated INTEGER NOT NULL DEFAULT 0,
	searchable_text TEXT,
	property_names TEXT,
	UNIQUE(api_id, name)
);
CREATE INDEX IF NOT EXISTS idx_schemas_type ON schemas(type);
CREATE INDEX IF NOT EXISTS idx_schemas_deprecated ON schemas(deprecated);
CREATE INDEX IF NOT EXISTS idx_schemas_refcount ON schemas(reference_count);

CREATE TABLE IF NOT EXISTS security_schemes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	definition TEXT NOT NULL,
	reference_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(api_id, name)
);
CREATE INDEX IF NOT EXISTS idx_security_schemes_type ON security_schemes(type);

CREATE TABLE IF NOT EXISTS endpoint_dependencies (
	endpoint_id INTEGER NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
	schema_id INTEGER NOT NULL REFERENCES schemas(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	UNIQUE(endpoint_id, schema_id, role)
);

CREATE TABLE IF NOT EXISTS endpoint_categories (
	api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
	category_key TEXT NOT NULL,
	display_name TEXT,
	group_name TEXT,
	endpoint_count INTEGER NOT NULL DEFAULT 0,
	methods TEXT,
	UNIQUE(api_id, category_key)
);
`,
		Down: `
DROP TABLE IF EXISTS endpoint_categories;
DROP TABLE IF EXISTS endpoint_dependencies;
DROP TABLE IF EXISTS security_schemes;
DROP TABLE IF EXISTS schemas;
DROP TABLE IF EXISTS endpoints;
DROP TABLE IF EXISTS apis;
`,
	},
	{
		Version:     2,
		Description: "full-text virtual tables and sync triggers",
		Up: `
CREATE VIRTUAL TABLE IF NOT EXISTS endpoints_fts USING fts5(
	endpoint_key, path, method, summary, description, searchable_text,
	content='endpoints', content_rowid='id', tokenize='porter ascii'
);
CREATE TRIGGER IF NOT EXISTS endpoints_fts_ai AFTER INSERT ON endpoints BEGIN
	INSERT INTO endpoints_fts(rowid, endpoint_key, path, method, summary, description, searchable_text)
	VALUES (new.id, new.endpoint_key, new.path, new.method, new.summary, new.description, new.searchable_text);
END;
CREATE TRIGGER IF NOT EXISTS endpoints_fts_ad AFTER DELETE ON endpoints BEGIN
	INSERT INTO endpoints_fts(endpoints_fts, rowid, endpoint_key, path, method, summary, description, searchable_text)
	VALUES ('delete', old.id, old.endpoint_key, old.path, old.method, old.summary, old.description, old.searchable_text);
END;
CREATE TRIGGER IF NOT EXISTS endpoints_fts_au AFTER UPDATE ON endpoints BEGIN
	INSERT INTO endpoints_fts(endpoints_fts, rowid, endpoint_key, path, method, summary, description, searchable_text)
	VALUES ('delete', old.id, old.endpoint_key, old.path, old.method, old.summary, old.description, old.searchable_text);
	INSERT INTO endpoints_fts(rowid, endpoint_key, path, method, summary, description, searchable_text)
	VALUES (new.id, new.endpoint_key, new.path, new.method, new.summary, new.description, new.searchable_text);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS schemas_fts USING fts5(
	name, title, description, searchable_text,
	content='schemas', content_rowid='id', tokenize='porter ascii'
);
CREATE TRIGGER IF NOT EXISTS schemas_fts_ai AFTER INSERT ON schemas BEGIN
	INSERT INTO schemas_fts(rowid, name, title, description, searchable_text)
	VALUES (new.id, new.name, new.title, new.description, new.searchable_text);
END;
CREATE TRIGGER IF NOT EXISTS schemas_fts_ad AFTER DELETE ON schemas BEGIN
	INSERT INTO schemas_fts(schemas_fts, rowid, name, title, description, searchable_text)
	VALUES ('delete', old.id, old.name, old.title, old.description, old.searchable_text);
END;
CREATE TRIGGER IF NOT EXISTS schemas_fts_au AFTER UPDATE ON schemas BEGIN
	INSERT INTO schemas_fts(schemas_fts, rowid, name, title, description, searchable_text)
	VALUES ('delete', old.id, old.name, old.title, old.description, old.searchable_text);
	INSERT INTO schemas_fts(rowid, name, title, description, searchable_text)
	VALUES (new.id, new.name, new.title, new.description, new.searchable_text);
END;
`,
		Down: `
DROP TRIGGER IF EXISTS schemas_fts_au;
DROP TRIGGER IF EXISTS schemas_fts_ad;
DROP TRIGGER IF EXISTS schemas_fts_ai;
DROP TABLE IF EXISTS schemas_fts;
DROP TRIGGER IF EXISTS endpoints_fts_au;
DROP TRIGGER IF EXISTS endpoints_fts_ad;
DROP TRIGGER IF EXISTS endpoints_fts_ai;
DROP TABLE IF EXISTS endpoints_fts;
`,
	},
}

// Migrate applies any missing migration versions in order, each inside its
// own transaction, and records version, checksum, and rollback SQL. An
// applied version whose checksum no longer matches is a hard error.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS database_migrations (
	version INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	checksum TEXT NOT NULL,
	rollback_sql TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return apierr.NewStorage("failed to create migration table", err)
	}

	applied := make(map[int]string)
	rows, err := s.db.QueryContext(ctx, `SELECT version, checksum FROM database_migrations`)
	if err != nil {
		return apierr.NewStorage("failed to read applied migrations", err)
	}
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return apierr.NewStorage("failed to scan migration row", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return apierr.NewStorage("failed to iterate migration rows", err)
	}
	rows.Close()

	for _, migration := range migrations {
		if checksum, ok := applied[migration.Version]; ok {
			if checksum != migration.Checksum() {
				return apierr.NewStorage(fmt.Sprintf(
					"migration %d checksum mismatch: recorded %s, expected %s",
					migration.Version, checksum, migration.Checksum()), nil)
			}
			continue
		}
		if err := s.applyMigration(ctx, migration); err != nil {
			return err
		}
		s.logger.Info("applied migration",
			"version", migration.Version, "description", migration.Description)
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.NewStorage("failed to begin migration transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return apierr.NewStorage(fmt.Sprintf("migration %d failed", migration.Version), err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO database_migrations (version, description, checksum, rollback_sql) VALUES (?, ?, ?, ?)`,
		migration.Version, migration.Description, migration.Checksum(), migration.Down); err != nil {
		return apierr.NewStorage(fmt.Sprintf("failed to record migration %d", migration.Version), err)
	}
	if err := tx.Commit(); err != nil {
		return apierr.NewStorage(fmt.Sprintf("failed to commit migration %d", migration.Version), err)
	}
	return nil
}

// AppliedMigrations returns the recorded versions in order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM database_migrations ORDER BY version`)
	if err != nil {
		return nil, apierr.NewStorage("failed to list migrations", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, apierr.NewStorage("failed to scan migration version", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
