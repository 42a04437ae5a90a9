//go:build !sqlite_fts5

package storage

// The endpoint and schema search tables are FTS5 virtual tables, and
// mattn/go-sqlite3 only compiles the FTS5 extension in when the
// sqlite_fts5 build tag is set. Without it the migrations fail at
// runtime with "no such module: fts5", so refuse to build instead:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
var _ = thisModuleRequiresTheSqliteFTS5BuildTag
