package flow

import (
	"reflect"
	"time"
)

// RootBranch is the reserved name of the top-level branch of every flow.
const RootBranch = "root"

// NodeType classifies a node's position in its branch.
type NodeType int

const (
	// NodeBegin nodes have no predecessors inside their branch and are the
	// entry points of that branch.
	NodeBegin NodeType = iota

	// NodeSimple nodes are ordinary nodes added with AddNext.
	NodeSimple

	// NodeEnd nodes are terminal markers. No successors can be attached to
	// them after marking, and they never block their successors' gate.
	NodeEnd
)

// String returns the lower-case name of the node type.
func (t NodeType) String() string {
	switch t {
	case NodeBegin:
		return "begin"
	case NodeSimple:
		return "simple"
	case NodeEnd:
		return "end"
	default:
		return "unknown"
	}
}

// NodeStatus is the per-run execution status of a node.
//
// Status transitions are NotStarted → Running → Completed. A node never
// leaves Completed and never re-enters Running.
type NodeStatus int

const (
	StatusNotStarted NodeStatus = iota
	StatusRunning
	StatusCompleted
)

// String returns the status name used in logs and reports.
func (s NodeStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ProcessKey references a process implementation in a Factory.
// Nodes hold keys, never instances: instances are resolved per run.
type ProcessKey string

// KeyOf returns the process key derived from the name of type P.
// Pointer types are dereferenced, so KeyOf[*TaxProcess]() == "TaxProcess".
//
// Example:
//
//	b.Begin(flow.KeyOf[InitProcess]())
func KeyOf[P any]() ProcessKey {
	t := reflect.TypeOf((*P)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return ProcessKey(t.Name())
}

// Predicate is a function that evaluates the run context to decide whether a
// node executes.
//
// Predicates should be pure functions: they are evaluated once, right before
// the node would execute.
type Predicate[C any] func(ctx C) bool

// node is a graph vertex stored in the graph arena. Edges are arena indices,
// so no node owns another.
type node[C any] struct {
	id        string
	name      string
	branch    string
	typ       NodeType
	entry     bool
	process   ProcessKey
	condition Predicate[C]
	timeout   time.Duration
	prev      []int
	next      []int
}

// NodeInfo is a read-only view of a node in a built Graph.
type NodeInfo struct {
	ID           string
	Name         string
	Branch       string
	Type         NodeType
	Entry        bool
	Process      ProcessKey
	Conditional  bool
	Timeout      time.Duration
	Predecessors []string
	Successors   []string
}
