package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/simpleflow/flow/emit"
)

// Engine executes a built Graph.
//
// An Engine holds no per-run state: Run may be called many times, including
// concurrently, with different run contexts. Each run binds fresh process
// instances from the factory before traversal starts.
//
// Type parameter C is the run context type. It must record history, see
// Context and HistoryLog.
type Engine[C Context] struct {
	graph   *Graph[C]
	factory Factory[C]
	opts    Options
	emitter emit.Emitter
	logger  *slog.Logger
}

// Report summarizes one run.
type Report struct {
	// RunID identifies the run in events, logs and the history store.
	RunID string

	// Flow is the graph name.
	Flow string

	// Statuses holds the final status of every node, keyed by node ID.
	// A node that failed stays StatusRunning.
	Statuses map[string]NodeStatus

	// Pruned lists, in settlement order, the nodes that were not executed
	// because every predecessor was skipped or pruned.
	Pruned []string

	Started  time.Time
	Duration time.Duration
}

// New creates an engine for g resolving processes from factory.
//
// When factory is a *Registry, New fails fast if a process key used by the
// graph is not registered.
//
// Example:
//
//	reg := flow.NewRegistry[*Sale]()
//	reg.MustRegister("init", func() flow.Process[*Sale] { return &InitProcess{} })
//	engine, err := flow.New(g, reg, flow.WithEmitter(emitter))
//	if err != nil {
//	    return err
//	}
//	err = engine.Run(ctx, &Sale{Amount: 100})
func New[C Context](g *Graph[C], factory Factory[C], opts ...Option) (*Engine[C], error) {
	if g == nil {
		return nil, &EngineError{Message: "graph cannot be nil", Code: "MISSING_GRAPH"}
	}
	if factory == nil {
		return nil, &EngineError{Message: "process factory cannot be nil", Code: "MISSING_FACTORY"}
	}

	cfg := &engineConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if reg, ok := factory.(*Registry[C]); ok {
		if missing := reg.Missing(g.ProcessKeys()); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, k := range missing {
				names[i] = string(k)
			}
			return nil, &EngineError{
				Message: "unregistered processes: " + strings.Join(names, ", "),
				Code:    "BINDING_FAILED",
				Cause:   ErrUnknownProcess,
			}
		}
	}

	e := &Engine[C]{
		graph:   g,
		factory: factory,
		opts:    cfg.opts,
		emitter: cfg.opts.Emitter,
		logger:  cfg.opts.Logger,
	}
	if e.emitter == nil {
		e.emitter = emit.NewNullEmitter()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Graph returns the graph executed by the engine.
func (e *Engine[C]) Graph() *Graph[C] {
	return e.graph
}

// Options returns the effective engine configuration.
func (e *Engine[C]) Options() Options {
	return e.opts
}

// Run executes one run over rc and returns the first error.
//
// Errors:
//   - *EngineError with code BINDING_FAILED if a process cannot be resolved;
//     no process runs in that case.
//   - *NodeError wrapping the process error when a process fails. Nodes that
//     completed before the failure keep their history entries.
//   - *EngineError with code RUN_CANCELLED or RUN_BUDGET when ctx is
//     cancelled or the wall-clock budget is exhausted.
func (e *Engine[C]) Run(ctx context.Context, rc C) error {
	_, err := e.Execute(ctx, rc)
	return err
}

// Execute is like Run but also returns a Report. The report is returned even
// when the run fails, unless binding failed.
func (e *Engine[C]) Execute(ctx context.Context, rc C) (*Report, error) {
	r := newRun(e, rc)

	if err := r.bind(); err != nil {
		r.logger.Error("binding failed", "error", err)
		return nil, err
	}

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.opts.RunWallClockBudget, ErrRunBudgetExceeded)
		defer cancel()
	}

	if err := r.start(ctx); err != nil {
		return nil, err
	}

	var err error
	if e.opts.MaxConcurrentNodes > 1 {
		err = r.traverseParallel(ctx)
	} else {
		err = r.traverse(ctx)
	}

	report := r.finish(ctx, err)
	if err != nil {
		return report, err
	}
	return report, nil
}

// String describes the engine for logs.
func (e *Engine[C]) String() string {
	return fmt.Sprintf("flow %s (%d nodes)", e.graph.Name(), e.graph.Len())
}
