package flow

import (
	"context"
	"fmt"
	"time"
)

// nodeTimeout returns the deadline for a node: its own timeout, else the
// engine default, else 0 (unlimited).
func nodeTimeout(own, defaultTimeout time.Duration) time.Duration {
	if own > 0 {
		return own
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeWithTimeout runs p with a deadline derived from the node and engine
// configuration. A process that overruns its deadline fails with
// ErrNodeTimeout even if it returned nil.
func executeWithTimeout[C any](ctx context.Context, p Process[C], rc C, nodeID string, timeout time.Duration) error {
	if timeout == 0 {
		return p.Execute(ctx, rc)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.Execute(tctx, rc)
	if tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
			Cause:   context.DeadlineExceeded,
		}
	}
	return err
}
