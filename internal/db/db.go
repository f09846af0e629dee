// Package db is chatcast's sqlite store: persisted key/value state and the
// dispatch log of past broadcasts.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pragmas run on every connection the driver opens.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// DB wraps a single-connection sqlite handle.
type DB struct {
	path        string
	conn        *sql.DB
	quarantined string
}

// Open opens the database at DefaultPath.
func Open() (*DB, error) {
	return OpenAt(DefaultPath())
}

// OpenAt opens or creates the database at path and applies migrations.
//
// A file sqlite rejects as corrupt is moved aside, together with its -wal and
// -shm files, as <path>.corrupt.<timestamp>, and an empty database replaces
// it. Quarantined reports where the old file went.
func OpenAt(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := openAndMigrate(path)
	if err == nil {
		return &DB{path: path, conn: conn}, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	backup, qerr := quarantine(path, time.Now())
	if qerr != nil {
		return nil, fmt.Errorf("db is corrupt (%v) and could not be moved aside: %w", err, qerr)
	}
	conn, err = openAndMigrate(path)
	if err != nil {
		return nil, err
	}
	return &DB{path: path, conn: conn, quarantined: backup}, nil
}

// Close folds the WAL back into the main file and closes the connection. It
// is safe on a nil or already closed DB.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	var errs []error
	if _, err := d.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		errs = append(errs, fmt.Errorf("wal checkpoint: %w", err))
	}
	if err := d.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	d.conn = nil
	return errors.Join(errs...)
}

// Conn exposes the underlying handle for migrations and tests.
func (d *DB) Conn() *sql.DB {
	if d == nil {
		return nil
	}
	return d.conn
}

func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Quarantined is the path a corrupt database was moved to when it was opened,
// or "".
func (d *DB) Quarantined() string {
	if d == nil {
		return ""
	}
	return d.quarantined
}

// DefaultPath is $CHATCAST_HOME/data/chatcast.db, or ~/.chatcast/data/chatcast.db.
func DefaultPath() string {
	if home := os.Getenv("CHATCAST_HOME"); home != "" {
		return filepath.Join(home, "data", "chatcast.db")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".chatcast", "data", "chatcast.db")
	}
	return filepath.Join(homeDir, ".chatcast", "data", "chatcast.db")
}

func openAndMigrate(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps kv writes and dispatch inserts strictly ordered.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := RunMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// dsn builds a modernc URI; mode=rwc creates the file when missing.
func dsn(path string) string {
	q := url.Values{"mode": {"rwc"}}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "malformed")
}

// quarantine renames path and its sidecars out of the way and returns the
// new main file path. A missing path is not an error.
func quarantine(path string, now time.Time) (string, error) {
	backup := path + ".corrupt." + now.UTC().Format("20060102T150405Z")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Rename(path+suffix, backup+suffix)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("move %s: %w", filepath.Base(path+suffix), err)
		}
	}
	return backup, nil
}
