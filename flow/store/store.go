// Package store provides persistence for run history.
//
// A HistoryStore records every run of a flow: when it started, the history
// entries appended to its run context in completion order, and how it
// finished. Flow definitions are never persisted.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRunExists is returned by StartRun when the run ID is already recorded.
	ErrRunExists = errors.New("run already exists")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("store is closed")
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord describes one run of a flow.
type RunRecord struct {
	ID         string    `json:"id"`
	Flow       string    `json:"flow"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Entries is populated by LoadRun only.
	Entries []Entry `json:"entries,omitempty"`
}

// Finished reports whether the run has ended.
func (r RunRecord) Finished() bool {
	return r.Status != RunRunning
}

// Entry is one persisted history entry. Seq starts at 1 and follows the order
// in which entries were appended to the run context.
type Entry struct {
	Seq       int       `json:"seq"`
	NodeID    string    `json:"node_id"`
	Name      string    `json:"name"`
	Succeeded bool      `json:"succeeded"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// HistoryStore persists run history.
//
// Implementations must be safe for concurrent use: one store is shared by
// every run of every engine configured with it.
type HistoryStore interface {
	// StartRun records a new run in the running state. It returns
	// ErrRunExists if run.ID is already recorded.
	StartRun(ctx context.Context, run RunRecord) error

	// AppendEntry appends an entry to a run. It returns ErrNotFound for an
	// unknown run.
	AppendEntry(ctx context.Context, runID string, entry Entry) error

	// FinishRun sets the final status of a run. errMsg is empty on success.
	FinishRun(ctx context.Context, runID string, status RunStatus, errMsg string, finishedAt time.Time) error

	// LoadRun returns a run with its entries ordered by Seq.
	LoadRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns returns the most recent runs first, without entries. An empty
	// flow matches every flow; limit <= 0 means no limit.
	ListRuns(ctx context.Context, flow string, limit int) ([]RunRecord, error)

	// Close releases resources held by the store.
	Close() error
}
