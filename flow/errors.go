// Package flow provides the process orchestration engine for simpleflow.
//
// A flow is a directed acyclic graph of nodes, each referencing a process by
// key. Flows are assembled once with a Builder, executed many times by an
// Engine, and every run appends one ProcessHistory entry per finished node to
// its run context.
package flow

import "errors"

// Configuration errors are returned by the builder. A *ConfigError matches the
// sentinel for its code via errors.Is.
var (
	// ErrDuplicateNode indicates that a node identifier was registered twice.
	// Re-running part of a flow must be expressed with a new branch instead.
	ErrDuplicateNode = errors.New("duplicate node identifier")

	// ErrInvalidBranch indicates a branch name that is empty after trimming or
	// equal to RootBranch.
	ErrInvalidBranch = errors.New("invalid branch name")

	// ErrDuplicateBranch indicates that two branches share a name.
	ErrDuplicateBranch = errors.New("duplicate branch name")

	// ErrEndNode indicates an attempt to attach successors to a node marked End.
	ErrEndNode = errors.New("node is marked as end")

	// ErrEmptyProcess indicates a node without a process key.
	ErrEmptyProcess = errors.New("process key cannot be empty")

	// ErrNoParent indicates a join without any branch to join.
	ErrNoParent = errors.New("no previous branch to join")

	// ErrEmptyGraph indicates that Build was called on a flow without entry nodes.
	ErrEmptyGraph = errors.New("flow has no begin nodes")

	// ErrAlreadyBuilt indicates that the builder was used after Build.
	ErrAlreadyBuilt = errors.New("builder already built")
)

// Run errors.
var (
	// ErrBinding indicates that a process instance could not be resolved for a node.
	// Runs never start with unresolved nodes.
	ErrBinding = errors.New("process binding failed")

	// ErrProcessNotBound indicates that a node was invoked without a bound process.
	// It means Bind did not precede traversal and is always a programming error.
	ErrProcessNotBound = errors.New("process is not bound")

	// ErrUnknownProcess is returned by Registry.Resolve for unregistered keys.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrNodeTimeout indicates that a process exceeded its deadline.
	ErrNodeTimeout = errors.New("node timeout")

	// ErrRunBudgetExceeded indicates that a run exceeded its wall-clock budget.
	ErrRunBudgetExceeded = errors.New("run wall-clock budget exceeded")

	// ErrRunCancelled indicates that the caller cancelled the run context.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrStore indicates that the history store rejected a run.
	ErrStore = errors.New("history store error")

	// ErrInvalidOption indicates an invalid engine option.
	ErrInvalidOption = errors.New("invalid engine option")
)

var codeSentinels = map[string]error{
	"DUPLICATE_NODE":   ErrDuplicateNode,
	"INVALID_BRANCH":   ErrInvalidBranch,
	"DUPLICATE_BRANCH": ErrDuplicateBranch,
	"END_NODE":         ErrEndNode,
	"EMPTY_PROCESS":    ErrEmptyProcess,
	"NO_PARENT":        ErrNoParent,
	"EMPTY_GRAPH":      ErrEmptyGraph,
	"ALREADY_BUILT":    ErrAlreadyBuilt,
	"BINDING_FAILED":   ErrBinding,
	"NOT_BOUND":        ErrProcessNotBound,
	"NODE_TIMEOUT":     ErrNodeTimeout,
	"RUN_BUDGET":       ErrRunBudgetExceeded,
	"RUN_CANCELLED":    ErrRunCancelled,
	"STORE_ERROR":      ErrStore,
	"INVALID_OPTION":   ErrInvalidOption,
}

// ConfigError represents an invalid flow definition detected while building.
//
// Configuration errors are fatal: the builder stops at the first one and
// Build returns it.
type ConfigError struct {
	// Code is a machine-readable error code, e.g. "DUPLICATE_NODE".
	Code string

	// Message is the human-readable description.
	Message string

	// NodeID is the offending node identifier, if any.
	NodeID string

	// Branch is the branch being configured when the error occurred.
	Branch string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Branch != "" {
		msg = "branch " + e.Branch + ": " + msg
	}
	return e.Code + ": " + msg
}

// Is reports whether target is the sentinel error for this code.
func (e *ConfigError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel error for this code.
func (e *EngineError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// NodeError represents an error returned by a process during execution.
// It identifies the node and wraps the process's own error.
type NodeError struct {
	// NodeID identifies which node failed.
	NodeID string

	// Name is the node's display name.
	Name string

	// Cause is the error returned by the process.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return "node " + e.NodeID + " (" + e.Name + "): " + e.Cause.Error()
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
