package flow

import (
	"sync"
	"time"
)

// Messages recorded for nodes that completed without executing their process.
const (
	MessageSkipped = "Not executed. Did not pass the condition."
	MessagePruned  = "Not executed. All predecessors were skipped."
)

// ProcessHistory records the outcome of one node in a run.
//
// Entries are created by the engine when a node finishes (success, skip or
// failure) and appended to the run context. They are never modified.
type ProcessHistory struct {
	NodeID    string    `json:"node_id"`
	Name      string    `json:"name"`
	Succeeded bool      `json:"succeeded"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Success returns a history entry for a node whose process completed.
func Success(nodeID, name string) ProcessHistory {
	return ProcessHistory{NodeID: nodeID, Name: name, Succeeded: true, At: time.Now()}
}

// Skipped returns a successful, non-executed entry carrying message.
func Skipped(nodeID, name, message string) ProcessHistory {
	return ProcessHistory{NodeID: nodeID, Name: name, Succeeded: true, Message: message, At: time.Now()}
}

// Failure returns a history entry for a node whose process returned err.
func Failure(nodeID, name string, err error) ProcessHistory {
	h := ProcessHistory{NodeID: nodeID, Name: name, At: time.Now()}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// Executed reports whether the node's process actually ran.
func (h ProcessHistory) Executed() bool {
	return h.Message == "" || !h.Succeeded
}

// Context is the constraint for run contexts.
//
// A run context carries the domain state read and written by processes plus
// the ordered, append-only history log written by the engine. Embed
// HistoryLog to satisfy it:
//
//	type Sale struct {
//	    flow.HistoryLog
//	    Amount float64
//	}
//
// and run the flow with a *Sale.
type Context interface {
	AppendHistory(h ProcessHistory)
	History() []ProcessHistory
}

// HistoryLog is an embeddable, concurrency-safe implementation of Context.
// The zero value is ready to use.
type HistoryLog struct {
	mu      sync.RWMutex
	entries []ProcessHistory
}

// AppendHistory appends h to the log.
func (l *HistoryLog) AppendHistory(h ProcessHistory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, h)
}

// History returns a copy of the log in append order.
func (l *HistoryLog) History() []ProcessHistory {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ProcessHistory, len(l.entries))
	copy(out, l.entries)
	return out
}

// Names returns the node names in the log, in append order.
func (l *HistoryLog) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, len(l.entries))
	for i, h := range l.entries {
		names[i] = h.Name
	}
	return names
}
