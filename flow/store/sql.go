package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlStore implements HistoryStore on database/sql. SQLiteStore and
// MySQLStore embed it and differ only in connection setup and DDL; both
// drivers use "?" placeholders.
//
// Timestamps are stored as RFC 3339 text in UTC so both dialects compare and
// round-trip them identically.
type sqlStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func (s *sqlStore) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *sqlStore) exists(ctx context.Context, runID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flow_runs WHERE run_id = ?", runID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query run: %w", err)
	}
	return n > 0, nil
}

// StartRun implements HistoryStore.
func (s *sqlStore) StartRun(ctx context.Context, run RunRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}

	ok, err := s.exists(ctx, run.ID)
	if err != nil {
		return err
	}
	if ok {
		return ErrRunExists
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO flow_runs (run_id, flow, status, error, started_at, finished_at) VALUES (?, ?, ?, '', ?, '')",
		run.ID, run.Flow, string(RunRunning), formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// AppendEntry implements HistoryStore.
func (s *sqlStore) AppendEntry(ctx context.Context, runID string, entry Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}

	ok, err := s.exists(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flow_history (run_id, seq, node_id, name, succeeded, message, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, entry.Seq, entry.NodeID, entry.Name, entry.Succeeded, entry.Message, entry.Error, formatTime(entry.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// FinishRun implements HistoryStore.
func (s *sqlStore) FinishRun(ctx context.Context, runID string, status RunStatus, errMsg string, finishedAt time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}

	ok, err := s.exists(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE flow_runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?",
		string(status), errMsg, formatTime(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// LoadRun implements HistoryStore.
func (s *sqlStore) LoadRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT run_id, flow, status, error, started_at, finished_at FROM flow_runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, node_id, name, succeeded, message, error, at
		 FROM flow_history WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e  Entry
			at string
		)
		if err := rows.Scan(&e.Seq, &e.NodeID, &e.Name, &e.Succeeded, &e.Message, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("failed to parse entry time: %w", err)
		}
		run.Entries = append(run.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return run, nil
}

// ListRuns implements HistoryStore.
func (s *sqlStore) ListRuns(ctx context.Context, flow string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	query := "SELECT run_id, flow, status, error, started_at, finished_at FROM flow_runs"
	var args []interface{}
	if flow != "" {
		query += " WHERE flow = ?"
		args = append(args, flow)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection.
func (s *sqlStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close implements HistoryStore.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run              RunRecord
		status           string
		started, finished string
	)
	if err := row.Scan(&run.ID, &run.Flow, &status, &run.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = RunStatus(status)

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("failed to parse finish time: %w", err)
	}
	return &run, nil
}
