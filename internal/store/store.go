// Package store persists the check-in ledger in a sqlite file.
//
// One table, `reports`, keyed by the composite
// (report_date, user_id, deadline_key, chat_id, thread_id). Writes are
// idempotent upserts; reads are snapshots scoped by the same key.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tallybot/pkg/logx"
)

// Config configures the sqlite ledger.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Checkin is one qualifying submission. Handle and Name are snapshots of
// the sender's identity at submission time, not live lookups.
type Checkin struct {
	Date        string // ISO date (YYYY-MM-DD)
	UserID      int64
	DeadlineKey string
	ChatID      int64
	ThreadID    int
	Handle      string
	Name        string
}

// Reporter is one row of a ReportersFor snapshot.
type Reporter struct {
	UserID int64
	Handle string
	Name   string
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the ledger, creating the file and migrating any legacy
// table shape found in it.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", cfg.Path, err)
	}
	// SQLite prefers a single writer; this also gives reads the
	// full-row visibility the composite-key upserts rely on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordCheckin upserts one check-in. A resubmission with the same key
// replaces the stored handle/name (last write wins), never duplicates.
func (s *Store) RecordCheckin(ctx context.Context, c Checkin) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (
			report_date, user_id, deadline_key, chat_id, thread_id, username, full_name
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Date, c.UserID, c.DeadlineKey, c.ChatID, c.ThreadID, nullStr(c.Handle), nullStr(c.Name),
	)
	if err != nil {
		return fmt.Errorf("store: record checkin: %w", err)
	}
	return nil
}

// ReportersFor returns everyone recorded for the given occurrence.
// Nothing recorded yields an empty map, not an error.
func (s *Store) ReportersFor(ctx context.Context, date, deadlineKey string, chatID int64, threadID int) (map[int64]Reporter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, full_name
		 FROM reports
		 WHERE report_date = ? AND deadline_key = ? AND chat_id = ? AND thread_id = ?`,
		date, deadlineKey, chatID, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: reporters: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]Reporter)
	for rows.Next() {
		var (
			id       int64
			username sql.NullString
			fullName sql.NullString
		)
		if err := rows.Scan(&id, &username, &fullName); err != nil {
			return nil, fmt.Errorf("store: reporters: %w", err)
		}
		out[id] = Reporter{UserID: id, Handle: username.String, Name: fullName.String}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: reporters: %w", err)
	}
	return out, nil
}

// nullStr maps only the truly absent value to NULL; a non-empty string
// is stored verbatim, whitespace included. The snapshot is what the
// platform reported, rendering decides presentation.
func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
