package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaTooNew means the file was written by a newer chatcast.
var ErrSchemaTooNew = errors.New("database schema is newer than this chatcast")

// migration is one forward schema step. Versions start at 1 and are dense.
type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{1, "kv_state", `
CREATE TABLE IF NOT EXISTS kv_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`},
	{2, "dispatch_log", `
CREATE TABLE IF NOT EXISTS dispatch_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    status TEXT NOT NULL,
    surface TEXT NOT NULL DEFAULT '',
    submit_path TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_dispatch_created ON dispatch_log(created_at);
CREATE INDEX IF NOT EXISTS idx_dispatch_cycle ON dispatch_log(cycle_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_target ON dispatch_log(target_id, created_at);
`},
}

// SchemaVersion is the version RunMigrations brings a database to.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// RunMigrations applies every pending migration in one transaction. A
// database already past SchemaVersion is left untouched and reported with
// ErrSchemaTooNew.
func RunMigrations(conn *sql.DB) error {
	if conn == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if current > SchemaVersion() {
		return fmt.Errorf("%w (file %d, supported %d)", ErrSchemaTooNew, current, SchemaVersion())
	}

	for _, m := range migrations[current:] {
		if _, err := tx.Exec(m.up); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return tx.Commit()
}
