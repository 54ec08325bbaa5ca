// Package emit delivers flow run events to observability backends.
package emit

// Emitter receives and processes observability events from flow runs.
//
// Emitters enable pluggable observability backends:
//   - Logging: slog text or JSON
//   - Distributed tracing: OpenTelemetry
//   - Messaging: AMQP exchanges
//   - Testing: in-memory buffers
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down the run
//   - Thread-safe: Parallel runs emit from several goroutines
//   - Resilient: Handle failures internally, never panic
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// Multi fans every event out to several emitters, in order.
type Multi []Emitter

// NewMulti returns an emitter that forwards to each non-nil emitter.
func NewMulti(emitters ...Emitter) Multi {
	m := make(Multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	return m
}

// Emit forwards the event to every emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
