package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/simpleflow/flow/emit"
	"github.com/dshills/simpleflow/flow/store"
)

// nodeState is the per-run state of one node.
//
// pending counts the non-End predecessors that have not settled yet and
// outstanding counts every unsettled predecessor, End nodes included. live
// and skipped count settlements by predecessors that completed normally and
// by predecessors that were skipped or pruned. A node passes its gate when
// pending reaches zero. It is pruned instead of executed only once all
// predecessors settled and none of them settled live.
type nodeState struct {
	status      NodeStatus
	pending     int
	outstanding int
	live        int
	skipped     int
	pruned      bool
}

// run holds everything mutable about one execution of a graph.
type run[C Context] struct {
	e       *Engine[C]
	g       *Graph[C]
	id      string
	rc      C
	procs   []Process[C]
	logger  *slog.Logger
	started time.Time

	mu     sync.Mutex
	states []nodeState
	pruned []string

	histMu  sync.Mutex
	histSeq int

	eventSeq atomic.Int64
}

func newRun[C Context](e *Engine[C], rc C) *run[C] {
	r := &run[C]{
		e:       e,
		g:       e.graph,
		id:      uuid.NewString(),
		rc:      rc,
		procs:   make([]Process[C], e.graph.Len()),
		states:  make([]nodeState, e.graph.Len()),
		started: time.Now(),
	}
	r.logger = e.logger.With("flow", r.g.name, "run_id", r.id)

	for i := range r.g.nodes {
		r.states[i].outstanding = len(r.g.nodes[i].prev)
		for _, p := range r.g.nodes[i].prev {
			if r.g.nodes[p].typ != NodeEnd {
				r.states[i].pending++
			}
		}
	}
	return r
}

// bind resolves one process instance per node. Nothing runs unless every
// node is bound.
func (r *run[C]) bind() error {
	for i := range r.g.nodes {
		n := &r.g.nodes[i]
		p, err := r.e.factory.Resolve(n.process)
		if err == nil && p == nil {
			err = fmt.Errorf("factory returned nil for %q", n.process)
		}
		if err != nil {
			return &EngineError{
				Message: fmt.Sprintf("node %s: cannot bind process %s", n.id, n.process),
				Code:    "BINDING_FAILED",
				Cause:   err,
			}
		}
		r.procs[i] = p
	}
	return nil
}

func (r *run[C]) start(ctx context.Context) error {
	if st := r.e.opts.HistoryStore; st != nil {
		err := st.StartRun(ctx, store.RunRecord{ID: r.id, Flow: r.g.name, StartedAt: r.started})
		if err != nil {
			return &EngineError{Message: "failed to record run start", Code: "STORE_ERROR", Cause: err}
		}
	}

	r.logger.Info("run started", "nodes", r.g.Len())
	r.emit(emit.MsgRunStart, "", map[string]interface{}{
		"nodes":   r.g.Len(),
		"entries": len(r.g.entries),
	})
	return nil
}

// traverse is the sequential depth-first driver. Entry nodes are visited in
// declaration order and successors left to right.
func (r *run[C]) traverse(ctx context.Context) error {
	for _, idx := range r.g.entries {
		if err := r.visit(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run[C]) visit(ctx context.Context, idx int) error {
	ready, err := r.step(ctx, idx)
	if err != nil {
		return err
	}
	for _, next := range ready {
		if err := r.visit(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// traverseParallel runs ready nodes on goroutines, at most
// MaxConcurrentNodes at a time. The first error cancels the others.
func (r *run[C]) traverseParallel(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.e.opts.MaxConcurrentNodes))

	var schedule func(idx int)
	schedule = func(idx int) {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return r.ctxErr(gctx)
			}
			ready, err := r.step(gctx, idx)
			sem.Release(1)
			if err != nil {
				return err
			}
			for _, next := range ready {
				schedule(next)
			}
			return nil
		})
	}

	for _, idx := range r.g.entries {
		schedule(idx)
	}
	return g.Wait()
}

// step processes one invocation of a node and returns the successors whose
// gate may now be open. Invoking a node that is gated, running, completed or
// pruned is a no-op.
func (r *run[C]) step(ctx context.Context, idx int) ([]int, error) {
	if err := r.ctxErr(ctx); err != nil {
		return nil, err
	}
	n := &r.g.nodes[idx]

	r.mu.Lock()
	st := &r.states[idx]
	if st.pending > 0 || st.status != StatusNotStarted || st.pruned {
		r.mu.Unlock()
		return nil, nil
	}
	if st.live == 0 && st.skipped > 0 {
		if st.outstanding > 0 {
			// An End predecessor may still settle live.
			r.mu.Unlock()
			return nil, nil
		}
		st.pruned = true
		r.pruned = append(r.pruned, n.id)
		ready := r.settleLocked(idx, false)
		r.mu.Unlock()

		r.recordPruned(ctx, n)
		return ready, nil
	}
	if r.procs[idx] == nil {
		r.mu.Unlock()
		return nil, &EngineError{Message: "node " + n.id, Code: "NOT_BOUND"}
	}
	st.status = StatusRunning
	r.mu.Unlock()

	if n.condition != nil && !n.condition(r.rc) {
		r.appendHistory(ctx, Skipped(n.id, n.name, MessageSkipped))
		r.complete(idx)

		r.e.opts.Metrics.RecordNodeOutcome(r.g.name, n.id, OutcomeSkipped)
		r.logger.Debug("node skipped", "node_id", n.id, "node", n.name)
		r.emit(emit.MsgNodeSkipped, n.id, map[string]interface{}{
			"name":    n.name,
			"branch":  n.branch,
			"message": MessageSkipped,
		})

		r.mu.Lock()
		ready := r.settleLocked(idx, false)
		r.mu.Unlock()
		return ready, nil
	}

	if err := r.execute(ctx, n, idx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	ready := r.settleLocked(idx, true)
	r.mu.Unlock()
	return ready, nil
}

// execute runs the bound process and records its outcome.
func (r *run[C]) execute(ctx context.Context, n *node[C], idx int) error {
	logger := r.logger.With("node_id", n.id, "node", n.name)
	pctx := ContextWithLogger(ctx, logger)
	metrics := r.e.opts.Metrics
	timeout := nodeTimeout(n.timeout, r.e.opts.DefaultNodeTimeout)

	r.emit(emit.MsgNodeStart, n.id, map[string]interface{}{
		"name":    n.name,
		"branch":  n.branch,
		"process": string(n.process),
	})

	metrics.IncInflightNodes()
	start := time.Now()
	err := executeWithTimeout(pctx, r.procs[idx], r.rc, n.id, timeout)
	latency := time.Since(start)
	metrics.DecInflightNodes()

	if err != nil {
		if ctxErr := r.ctxErr(ctx); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		r.appendHistory(ctx, Failure(n.id, n.name, err))

		status, outcome := "error", OutcomeFailed
		if errors.Is(err, ErrNodeTimeout) {
			status, outcome = "timeout", OutcomeTimeout
		}
		metrics.RecordNodeLatency(r.g.name, n.id, latency, status)
		metrics.RecordNodeOutcome(r.g.name, n.id, outcome)

		logger.Error("process failed", "error", err, "duration", latency)
		meta := map[string]interface{}{
			"name":        n.name,
			"branch":      n.branch,
			"error":       err.Error(),
			"duration_ms": latency.Milliseconds(),
		}
		var engErr *EngineError
		if errors.As(err, &engErr) && engErr.Code != "" {
			meta["code"] = engErr.Code
		}
		r.emit(emit.MsgNodeError, n.id, meta)

		return &NodeError{NodeID: n.id, Name: n.name, Cause: err}
	}

	r.appendHistory(ctx, Success(n.id, n.name))
	r.complete(idx)

	metrics.RecordNodeLatency(r.g.name, n.id, latency, "success")
	metrics.RecordNodeOutcome(r.g.name, n.id, OutcomeSucceeded)
	logger.Debug("process completed", "duration", latency)
	r.emit(emit.MsgNodeEnd, n.id, map[string]interface{}{
		"name":        n.name,
		"branch":      n.branch,
		"duration_ms": latency.Milliseconds(),
	})
	return nil
}

func (r *run[C]) complete(idx int) {
	r.mu.Lock()
	r.states[idx].status = StatusCompleted
	r.mu.Unlock()
}

// settleLocked propagates the outcome of idx to its successors and returns
// those whose gate is open. r.mu must be held.
func (r *run[C]) settleLocked(idx int, live bool) []int {
	n := &r.g.nodes[idx]
	var ready []int
	for _, s := range n.next {
		st := &r.states[s]
		if live {
			st.live++
		} else {
			st.skipped++
		}
		st.outstanding--
		if n.typ != NodeEnd {
			st.pending--
		}
		if st.pending == 0 && st.status == StatusNotStarted && !st.pruned {
			ready = append(ready, s)
		}
	}
	return ready
}

func (r *run[C]) recordPruned(ctx context.Context, n *node[C]) {
	if r.e.opts.RecordPruned {
		r.appendHistory(ctx, Skipped(n.id, n.name, MessagePruned))
	}
	r.e.opts.Metrics.RecordNodeOutcome(r.g.name, n.id, OutcomePruned)
	r.logger.Debug("node pruned", "node_id", n.id, "node", n.name)
	r.emit(emit.MsgNodePruned, n.id, map[string]interface{}{
		"name":   n.name,
		"branch": n.branch,
	})
}

// appendHistory appends h to the run context and the history store. Store
// sequence numbers follow the order of the run context's log.
func (r *run[C]) appendHistory(ctx context.Context, h ProcessHistory) {
	r.histMu.Lock()
	r.histSeq++
	seq := r.histSeq
	r.rc.AppendHistory(h)
	r.histMu.Unlock()

	st := r.e.opts.HistoryStore
	if st == nil {
		return
	}
	err := st.AppendEntry(context.WithoutCancel(ctx), r.id, store.Entry{
		Seq:       seq,
		NodeID:    h.NodeID,
		Name:      h.Name,
		Succeeded: h.Succeeded,
		Message:   h.Message,
		Error:     h.Error,
		At:        h.At,
	})
	if err != nil {
		r.logger.Warn("failed to persist history entry", "node_id", h.NodeID, "seq", seq, "error", err)
	}
}

func (r *run[C]) emit(msg, nodeID string, meta map[string]interface{}) {
	r.e.emitter.Emit(emit.Event{
		RunID:  r.id,
		Flow:   r.g.name,
		Seq:    int(r.eventSeq.Add(1)),
		NodeID: nodeID,
		Msg:    msg,
		Meta:   meta,
	})
}

// ctxErr converts a done context into the run error.
func (r *run[C]) ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), ErrRunBudgetExceeded) {
		return &EngineError{
			Message: fmt.Sprintf("run exceeded budget of %v", r.e.opts.RunWallClockBudget),
			Code:    "RUN_BUDGET",
			Cause:   context.DeadlineExceeded,
		}
	}
	return &EngineError{Message: "run cancelled", Code: "RUN_CANCELLED", Cause: err}
}

func (r *run[C]) finish(ctx context.Context, runErr error) *Report {
	duration := time.Since(r.started)

	r.mu.Lock()
	report := &Report{
		RunID:    r.id,
		Flow:     r.g.name,
		Statuses: make(map[string]NodeStatus, len(r.states)),
		Pruned:   append([]string(nil), r.pruned...),
		Started:  r.started,
		Duration: duration,
	}
	for i, st := range r.states {
		report.Statuses[r.g.nodes[i].id] = st.status
	}
	r.mu.Unlock()

	status, errMsg := store.RunSucceeded, ""
	meta := map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"pruned":      len(report.Pruned),
	}
	if runErr != nil {
		status, errMsg = store.RunFailed, runErr.Error()
		meta["error"] = errMsg
		r.logger.Error("run failed", "error", runErr, "duration", duration)
	} else {
		r.logger.Info("run completed", "duration", duration, "pruned", len(report.Pruned))
	}
	meta["status"] = string(status)

	r.emit(emit.MsgRunEnd, "", meta)
	r.e.opts.Metrics.RecordRun(r.g.name, string(status), duration)

	if st := r.e.opts.HistoryStore; st != nil {
		if err := st.FinishRun(context.WithoutCancel(ctx), r.id, status, errMsg, time.Now()); err != nil {
			r.logger.Warn("failed to record run end", "error", err)
		}
	}
	return report
}
