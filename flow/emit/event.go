package emit

// Event messages emitted by the engine.
const (
	MsgRunStart    = "run_start"
	MsgRunEnd      = "run_end"
	MsgNodeStart   = "node_start"
	MsgNodeEnd     = "node_end"
	MsgNodeSkipped = "node_skipped"
	MsgNodePruned  = "node_pruned"
	MsgNodeError   = "node_error"
)

// Event represents an observability event emitted during a flow run.
//
// Events describe the life of a run:
//   - run start and end, with status and duration
//   - node start, completion, skip, pruning and failure
//
// Events are emitted to an Emitter which can:
//   - Log through slog
//   - Create OpenTelemetry spans
//   - Publish to a message broker
//   - Buffer in memory for inspection
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Flow is the name of the flow definition.
	Flow string

	// Seq is the position of the node's history entry in the run (1-indexed).
	// Zero for run-level events and node_start.
	Seq int

	// NodeID identifies which node emitted this event.
	// Empty string for run-level events.
	NodeID string

	// Msg is the event type, one of the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "name": Node display name
	//   - "branch": Node branch
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "status": Run status ("completed", "failed")
	Meta map[string]interface{}
}
