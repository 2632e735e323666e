package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"tallybot/pkg/logx"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	s, err := Open(Config{Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestRecordCheckinIdempotent(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	ctx := context.Background()

	c := Checkin{Date: "2025-09-01", UserID: 1, DeadlineKey: "daily", ChatID: 100, ThreadID: 5, Handle: "old", Name: "Old Name"}
	if err := s.RecordCheckin(ctx, c); err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}
	c.Handle = "new"
	c.Name = "New Name"
	if err := s.RecordCheckin(ctx, c); err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}

	got, err := s.ReportersFor(ctx, "2025-09-01", "daily", 100, 5)
	if err != nil {
		t.Fatalf("ReportersFor: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(got))
	}
	r := got[1]
	if r.Handle != "new" || r.Name != "New Name" {
		t.Fatalf("last write should win, got %+v", r)
	}
}

func TestRecordCheckinKeepsIdentityVerbatim(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	ctx := context.Background()

	// The identity snapshot is stored exactly as submitted; only the
	// truly empty value becomes NULL.
	c := Checkin{Date: "2025-09-01", UserID: 1, DeadlineKey: "daily", ChatID: 100, ThreadID: 5, Handle: " alice ", Name: ""}
	if err := s.RecordCheckin(ctx, c); err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}

	got, err := s.ReportersFor(ctx, "2025-09-01", "daily", 100, 5)
	if err != nil {
		t.Fatalf("ReportersFor: %v", err)
	}
	r := got[1]
	if r.Handle != " alice " {
		t.Fatalf("handle should be stored verbatim, got %q", r.Handle)
	}
	if r.Name != "" {
		t.Fatalf("empty name should stay empty, got %q", r.Name)
	}
}

func TestReportersForEmpty(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)

	got, err := s.ReportersFor(context.Background(), "2025-09-01", "daily", 100, 5)
	if err != nil {
		t.Fatalf("ReportersFor: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %+v", got)
	}
}

func TestCheckinIsolation(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	ctx := context.Background()

	base := Checkin{Date: "2025-09-01", UserID: 1, DeadlineKey: "daily", ChatID: 100, ThreadID: 5}
	if err := s.RecordCheckin(ctx, base); err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}

	tests := []struct {
		name           string
		date, deadline string
		chatID         int64
		threadID       int
	}{
		{"other chat", "2025-09-01", "daily", 200, 5},
		{"other thread", "2025-09-01", "daily", 100, 6},
		{"other date", "2025-09-02", "daily", 100, 5},
		{"other deadline", "2025-09-01", "weekly", 100, 5},
	}
	for _, tt := range tests {
		got, err := s.ReportersFor(ctx, tt.date, tt.deadline, tt.chatID, tt.threadID)
		if err != nil {
			t.Fatalf("%s: ReportersFor: %v", tt.name, err)
		}
		if len(got) != 0 {
			t.Fatalf("%s: record leaked across scope: %+v", tt.name, got)
		}
	}

	got, err := s.ReportersFor(ctx, "2025-09-01", "daily", 100, 5)
	if err != nil {
		t.Fatalf("ReportersFor: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("original scope lost its record: %+v", got)
	}
}

func TestMigrationFromLegacyShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.db")

	// Seed the earliest shape: no deadline/chat dimensions, old thread
	// column name.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE reports (
		report_date TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		report_thread_id INTEGER NOT NULL,
		username TEXT,
		full_name TEXT,
		PRIMARY KEY (report_date, user_id)
	)`)
	if err != nil {
		t.Fatalf("create legacy: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO reports (report_date, user_id, report_thread_id, username, full_name) VALUES (?, ?, ?, ?, ?)`,
		"2025-08-01", 7, 3, "bob", "Bob B",
	); err != nil {
		t.Fatalf("insert legacy: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw: %v", err)
	}

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open (migrating): %v", err)
	}
	defer s.Close()

	// Missing dimensions become '' / 0; the old thread column carries over.
	got, err := s.ReportersFor(context.Background(), "2025-08-01", "", 0, 3)
	if err != nil {
		t.Fatalf("ReportersFor: %v", err)
	}
	r, ok := got[7]
	if !ok {
		t.Fatalf("migrated row missing: %+v", got)
	}
	if r.Handle != "bob" || r.Name != "Bob B" {
		t.Fatalf("migrated row lost attributes: %+v", r)
	}

	// New-shape writes work after migration.
	if err := s.RecordCheckin(context.Background(), Checkin{
		Date: "2025-09-01", UserID: 7, DeadlineKey: "daily", ChatID: 100, ThreadID: 5,
	}); err != nil {
		t.Fatalf("RecordCheckin after migration: %v", err)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	t.Parallel()
	s, path := openTemp(t)
	ctx := context.Background()

	if err := s.RecordCheckin(ctx, Checkin{
		Date: "2025-09-01", UserID: 1, DeadlineKey: "daily", ChatID: 100, ThreadID: 5, Handle: "alice",
	}); err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Re-opening runs ensureSchema again; the row set must be unchanged.
	for i := 0; i < 2; i++ {
		s2, err := Open(Config{Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("reopen %d: %v", i, err)
		}
		got, err := s2.ReportersFor(ctx, "2025-09-01", "daily", 100, 5)
		if err != nil {
			t.Fatalf("ReportersFor: %v", err)
		}
		if len(got) != 1 || got[1].Handle != "alice" {
			t.Fatalf("reopen %d changed rows: %+v", i, got)
		}
		if err := s2.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}
