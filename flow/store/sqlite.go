package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of HistoryStore.
//
// It keeps run history in a single-file database and is intended for local
// tools, development and single-process services. WAL mode is enabled so
// history can be read while runs append to it.
//
// Schema:
//   - flow_runs: one row per run
//   - flow_history: one row per history entry, keyed by (run_id, seq)
type SQLiteStore struct {
	sqlStore
	path string
}

// NewSQLiteStore opens or creates the database at path and migrates it.
//
// Use ":memory:" for a throwaway database in tests.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{sqlStore: sqlStore{db: db}, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database path given to NewSQLiteStore.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flow_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			flow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT ''
		)`,
		"CREATE INDEX IF NOT EXISTS idx_flow_runs_flow ON flow_runs(flow)",
		`CREATE TABLE IF NOT EXISTS flow_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES flow_runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			name TEXT NOT NULL,
			succeeded INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL,
			UNIQUE(run_id, seq)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_flow_history_run ON flow_history(run_id)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
