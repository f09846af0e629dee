package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// scanTime decodes a DATETIME column. The driver hands back a time.Time when
// the stored text parses and the raw text otherwise.
func scanTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return parseTimeText(x)
	case []byte:
		return parseTimeText(string(x))
	case nil:
		return time.Time{}, fmt.Errorf("timestamp is null")
	}
	return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
}

func parseTimeText(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Get returns the raw value stored for key. ok is false when the key is absent.
func (d *DB) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if d == nil || d.conn == nil {
		return "", false, fmt.Errorf("db is not open")
	}

	err = d.conn.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Put replaces the value stored for key.
func (d *DB) Put(ctx context.Context, key, value string) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("db is not open")
	}

	_, err := d.conn.ExecContext(ctx, `
INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("db is not open")
	}

	if _, err := d.conn.ExecContext(ctx, `DELETE FROM kv_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
