// Package history persists a log of completed compiles. It is purely
// observational: the render pipeline records outcomes here after resolving
// them, and the API exposes the recent entries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the terminal outcome kind of one compile.
type Status string

const (
	StatusSucceeded    Status = "succeeded"
	StatusCompileError Status = "compile_error"
	StatusProcessError Status = "process_error"
	StatusCrashed      Status = "crashed"
)

// Entry is one completed compile.
type Entry struct {
	ID          string
	Mode        string // render | preview
	Compiler    string
	SourceFile  string
	OutputFile  string
	Status      Status
	DurationMS  int64
	Error       *string
	CompletedAt time.Time
}

// Store wraps the SQLite history database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if _, err := db.ExecContext(pctx, `
CREATE TABLE IF NOT EXISTS compile_log (
  id           TEXT PRIMARY KEY,
  mode         TEXT NOT NULL,
  compiler     TEXT NOT NULL,
  source_file  TEXT NOT NULL,
  output_file  TEXT NOT NULL,
  status       TEXT NOT NULL,
  duration_ms  INTEGER NOT NULL,
  error        TEXT,
  completed_at TEXT NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap compile_log: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one completed compile.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry ID is empty")
	}
	switch e.Status {
	case StatusSucceeded, StatusCompileError, StatusProcessError, StatusCrashed:
	default:
		return fmt.Errorf("invalid status: %q", e.Status)
	}

	completedAt := e.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO compile_log(id, mode, compiler, source_file, output_file, status, duration_ms, error, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Mode, e.Compiler, e.SourceFile, e.OutputFile, e.Status, e.DurationMS, e.Error,
		completedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert compile_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, mode, compiler, source_file, output_file, status, duration_ms, error, completed_at
FROM compile_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query compile_log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			statusS     string
			errS        sql.NullString
			completedAt string
		)
		if err := rows.Scan(&e.ID, &e.Mode, &e.Compiler, &e.SourceFile, &e.OutputFile,
			&statusS, &e.DurationMS, &errS, &completedAt); err != nil {
			return nil, fmt.Errorf("scan compile_log row: %w", err)
		}
		e.Status = Status(statusS)
		if errS.Valid {
			e.Error = &errS.String
		}
		if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
			e.CompletedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
