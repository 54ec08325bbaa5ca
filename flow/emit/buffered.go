package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are organized by run ID. It is intended for tests, debugging and
// small dashboards; events are kept until Clear is called.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := flow.New(g, registry, flow.WithEmitter(emitter))
//	report, _ := engine.Execute(ctx, sale)
//
//	skipped := emitter.GetHistoryWithFilter(report.RunID, emit.HistoryFilter{Msg: emit.MsgNodeSkipped})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
	runs   []string           // run IDs in first-seen order
}

// HistoryFilter specifies criteria for filtering buffered events.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	NodeID string // Filter by node ID (empty = no filter)
	Msg    string // Filter by message (empty = no filter)
	MinSeq *int   // Minimum sequence number (nil = no filter)
	MaxSeq *int   // Maximum sequence number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.events[event.RunID]; !seen {
		b.runs = append(b.runs, event.RunID)
	}
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// Runs returns the buffered run IDs in the order they were first seen.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.runs...)
}

// GetHistory returns a copy of all events for runID in emission order.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns a copy of the events for runID that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

func (f HistoryFilter) matches(event Event) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinSeq != nil && event.Seq < *f.MinSeq {
		return false
	}
	if f.MaxSeq != nil && event.Seq > *f.MaxSeq {
		return false
	}
	return true
}

// Clear removes the events of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		b.runs = nil
		return
	}
	delete(b.events, runID)
	for i, r := range b.runs {
		if r == runID {
			b.runs = append(b.runs[:i], b.runs[i+1:]...)
			break
		}
	}
}
