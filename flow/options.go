package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/simpleflow/flow/emit"
	"github.com/dshills/simpleflow/flow/store"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := flow.New(g, registry,
//	    flow.WithMaxConcurrent(4),
//	    flow.WithDefaultNodeTimeout(10*time.Second),
//	    flow.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
}

// Options holds the engine configuration. The zero value runs sequentially
// without deadlines, events, metrics or persistence.
type Options struct {
	// MaxConcurrentNodes is the number of processes allowed to execute at
	// once. 0 or 1 selects the sequential depth-first traversal.
	MaxConcurrentNodes int

	// DefaultNodeTimeout bounds each process unless the node sets its own
	// timeout. 0 means no limit.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds a whole run. 0 means no limit.
	RunWallClockBudget time.Duration

	// RecordPruned appends a history entry with MessagePruned for nodes that
	// are not executed because every predecessor was skipped or pruned.
	RecordPruned bool

	// Emitter receives run and node events. Nil disables events.
	Emitter emit.Emitter

	// Logger is the base logger. Nil uses slog.Default().
	Logger *slog.Logger

	// Metrics records Prometheus metrics. Nil disables metrics.
	Metrics *PrometheusMetrics

	// HistoryStore persists every run's history. Nil disables persistence.
	HistoryStore store.HistoryStore
}

func optionError(format string, args ...interface{}) error {
	return &EngineError{Message: fmt.Sprintf(format, args...), Code: "INVALID_OPTION"}
}

// WithOptions replaces the whole configuration. Later options still apply.
func WithOptions(o Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = o
		return nil
	}
}

// WithMaxConcurrent runs up to n independent ready nodes at once.
//
// Nodes become ready when all their predecessors settled, so fan-in nodes
// still run exactly once, after every branch. Processes running in parallel
// share the run context and must synchronize the fields they write.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return optionError("max concurrent must be >= 0, got %d", n)
		}
		cfg.opts.MaxConcurrentNodes = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the deadline applied to every process without a
// per-node timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return optionError("node timeout must be >= 0, got %v", d)
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget bounds the total duration of a run.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return optionError("run budget must be >= 0, got %v", d)
		}
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithPrunedHistory records a history entry for pruned nodes.
func WithPrunedHistory(enabled bool) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RecordPruned = enabled
		return nil
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Emitter = e
		return nil
	}
}

// WithLogger sets the base logger. Each run derives a child logger tagged
// with the flow name and run ID.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Logger = l
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithHistoryStore persists run history to st.
func WithHistoryStore(st store.HistoryStore) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.HistoryStore = st
		return nil
	}
}
