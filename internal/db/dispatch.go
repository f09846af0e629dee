package db

import (
	"context"
	"fmt"
	"time"
)

// DispatchRecord is one row of the dispatch log: what happened to one target
// during one broadcast cycle.
type DispatchRecord struct {
	ID         int64         `json:"id"`
	CycleID    string        `json:"cycle_id"`
	TargetID   string        `json:"target_id"`
	Status     string        `json:"status"`
	Surface    string        `json:"surface,omitempty"`
	SubmitPath string        `json:"submit_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RecordOutcome appends one row.
func (d *DB) RecordOutcome(ctx context.Context, rec DispatchRecord) error {
	return d.RecordOutcomes(ctx, []DispatchRecord{rec})
}

// RecordOutcomes appends rows for a whole cycle in one transaction.
func (d *DB) RecordOutcomes(ctx context.Context, recs []DispatchRecord) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("db is not open")
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO dispatch_log (cycle_id, target_id, status, surface, submit_path, error, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.CycleID, r.TargetID, r.Status, r.Surface, r.SubmitPath, r.Error,
			r.Duration.Milliseconds(), formatTime(created),
		); err != nil {
			return fmt.Errorf("insert dispatch %s/%s: %w", r.CycleID, r.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit rows, newest first.
func (d *DB) RecentOutcomes(ctx context.Context, limit int) ([]DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryOutcomes(ctx, `
SELECT id, cycle_id, target_id, status, surface, submit_path, error, duration_ms, created_at
FROM dispatch_log
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
}

// CycleOutcomes returns the rows of one cycle in dispatch order.
func (d *DB) CycleOutcomes(ctx context.Context, cycleID string) ([]DispatchRecord, error) {
	return d.queryOutcomes(ctx, `
SELECT id, cycle_id, target_id, status, surface, submit_path, error, duration_ms, created_at
FROM dispatch_log
WHERE cycle_id = ?
ORDER BY id ASC
`, cycleID)
}

// PruneOutcomes deletes rows created before cutoff and returns how many went.
func (d *DB) PruneOutcomes(ctx context.Context, cutoff time.Time) (int64, error) {
	if d == nil || d.conn == nil {
		return 0, fmt.Errorf("db is not open")
	}

	res, err := d.conn.ExecContext(ctx, `DELETE FROM dispatch_log WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune dispatch_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (d *DB) queryOutcomes(ctx context.Context, query string, args ...any) ([]DispatchRecord, error) {
	if d == nil || d.conn == nil {
		return nil, fmt.Errorf("db is not open")
	}

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatch_log: %w", err)
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var (
			r       DispatchRecord
			ms      int64
			created any
		)
		if err := rows.Scan(&r.ID, &r.CycleID, &r.TargetID, &r.Status, &r.Surface, &r.SubmitPath, &r.Error, &ms, &created); err != nil {
			return nil, fmt.Errorf("scan dispatch_log: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		if r.CreatedAt, err = scanTime(created); err != nil {
			return nil, fmt.Errorf("dispatch %d created_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch_log: %w", err)
	}
	return out, nil
}
