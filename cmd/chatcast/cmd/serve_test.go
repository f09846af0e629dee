package cmd

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenAt(filepath.Join(t.TempDir(), "chatcast.db"))
	if err != nil {
		t.Fatalf("OpenAt() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestStartPruner_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tc := range []struct {
		name      string
		schedule  string
		retention time.Duration
	}{
		{"empty schedule", "", time.Hour},
		{"zero retention", "@hourly", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stop, err := startPruner(context.Background(), nil, tc.schedule, tc.retention, logger)
			if err != nil {
				t.Fatalf("startPruner() error = %v", err)
			}
			stop()
		})
	}
}

func TestStartPruner_InvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := startPruner(context.Background(), nil, "whenever", time.Hour, logger); err == nil {
		t.Fatal("startPruner() should reject an invalid schedule")
	}
}

func TestStartPruner_RemovesOldRows(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	old := db.DispatchRecord{
		CycleID:   "old",
		TargetID:  "claude",
		Status:    "submitted",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	fresh := db.DispatchRecord{CycleID: "fresh", TargetID: "claude", Status: "submitted"}
	if err := database.RecordOutcomes(ctx, []db.DispatchRecord{old, fresh}); err != nil {
		t.Fatalf("RecordOutcomes() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stop, err := startPruner(ctx, database, "@every 1s", 24*time.Hour, logger)
	if err != nil {
		t.Fatalf("startPruner() error = %v", err)
	}
	defer stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		recs, err := database.RecentOutcomes(ctx, 10)
		if err != nil {
			t.Fatalf("RecentOutcomes() error = %v", err)
		}
		if len(recs) == 1 {
			if recs[0].CycleID != "fresh" {
				t.Errorf("kept cycle %q, want fresh", recs[0].CycleID)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("old dispatch row was not pruned")
}
