package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of HistoryStore.
//
// It is intended for tests, examples and short-lived processes. Data is lost
// when the process exits.
type MemStore struct {
	mu     sync.RWMutex
	runs   map[string]*RunRecord
	order  []string
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]*RunRecord)}
}

// StartRun implements HistoryStore.
func (m *MemStore) StartRun(_ context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.runs[run.ID]; exists {
		return ErrRunExists
	}
	run.Status = RunRunning
	run.Entries = nil
	m.runs[run.ID] = &run
	m.order = append(m.order, run.ID)
	return nil
}

// AppendEntry implements HistoryStore.
func (m *MemStore) AppendEntry(_ context.Context, runID string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Entries = append(run.Entries, entry)
	return nil
}

// FinishRun implements HistoryStore.
func (m *MemStore) FinishRun(_ context.Context, runID string, status RunStatus, errMsg string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = finishedAt
	return nil
}

// LoadRun implements HistoryStore.
func (m *MemStore) LoadRun(_ context.Context, runID string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}

	out := *run
	out.Entries = append([]Entry(nil), run.Entries...)
	sort.SliceStable(out.Entries, func(i, j int) bool { return out.Entries[i].Seq < out.Entries[j].Seq })
	return &out, nil
}

// ListRuns implements HistoryStore.
func (m *MemStore) ListRuns(_ context.Context, flow string, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var out []RunRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		run := m.runs[m.order[i]]
		if flow != "" && run.Flow != flow {
			continue
		}
		rec := *run
		rec.Entries = nil
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close implements HistoryStore.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
