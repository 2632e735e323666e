package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"tallybot/pkg/logx"
)

const createReports = `
CREATE TABLE IF NOT EXISTS %s (
	report_date TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	deadline_key TEXT NOT NULL,
	chat_id INTEGER NOT NULL,
	thread_id INTEGER NOT NULL,
	username TEXT,
	full_name TEXT,
	PRIMARY KEY (report_date, user_id, deadline_key, chat_id, thread_id)
)`

// ensureSchema creates the reports table and, when an older narrower
// shape is found (data written before the deadline/chat/thread
// dimensions existed), rebuilds it into the current one exactly once.
// Running it against an already-migrated store is a no-op.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createReports, "reports")); err != nil {
		return err
	}

	existing, pkCols, err := s.tableShape(ctx, "reports")
	if err != nil {
		return err
	}
	if currentShape(existing, pkCols) {
		return nil
	}

	cols := make([]string, 0, len(existing))
	for col := range existing {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	s.log.Info("migrating reports table to composite key shape",
		logx.String("existing_columns", strings.Join(cols, ",")))
	return s.migrateReports(ctx, existing)
}

func currentShape(existing, pkCols map[string]bool) bool {
	for _, col := range []string{"report_date", "user_id", "deadline_key", "chat_id", "thread_id", "username", "full_name"} {
		if !existing[col] {
			return false
		}
	}
	for _, col := range []string{"report_date", "user_id", "deadline_key", "chat_id", "thread_id"} {
		if !pkCols[col] {
			return false
		}
	}
	return true
}

func (s *Store) tableShape(ctx context.Context, table string) (existing, pkCols map[string]bool, err error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	existing = map[string]bool{}
	pkCols = map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, nil, err
		}
		existing[name] = true
		if pk > 0 {
			pkCols[name] = true
		}
	}
	return existing, pkCols, rows.Err()
}

// migrateReports copies every row into the current shape, substituting
// '' / 0 for key dimensions the old shape did not have, then atomically
// swaps the tables.
func (s *Store) migrateReports(ctx context.Context, existing map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(createReports, "reports_new")); err != nil {
		return err
	}

	pick := func(preferred string, fallbacks ...string) string {
		if existing[preferred] {
			return preferred
		}
		for _, f := range fallbacks {
			if existing[f] {
				return f
			}
		}
		return ""
	}
	deadlineExpr := "''"
	if existing["deadline_key"] {
		deadlineExpr = "deadline_key"
	}
	chatExpr := "0"
	if existing["chat_id"] {
		chatExpr = "chat_id"
	}
	threadExpr := "0"
	// thread_id was called report_thread_id in the earliest shape.
	if col := pick("thread_id", "report_thread_id"); col != "" {
		threadExpr = col
	}
	usernameExpr := "NULL"
	if existing["username"] {
		usernameExpr = "username"
	}
	fullNameExpr := "NULL"
	if existing["full_name"] {
		fullNameExpr = "full_name"
	}

	copyStmt := fmt.Sprintf(
		`INSERT OR REPLACE INTO reports_new (
			report_date, user_id, deadline_key, chat_id, thread_id, username, full_name
		)
		SELECT report_date, user_id, %s, %s, %s, %s, %s FROM reports`,
		deadlineExpr, chatExpr, threadExpr, usernameExpr, fullNameExpr,
	)
	if _, err := tx.ExecContext(ctx, copyStmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE reports"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE reports_new RENAME TO reports"); err != nil {
		return err
	}
	return tx.Commit()
}
