package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// testCtx is the run context used by the flow tests.
type testCtx struct {
	HistoryLog

	mu    sync.Mutex
	trace []string

	// Flags drive conditions.
	Flags map[string]bool
}

func newTestCtx() *testCtx {
	return &testCtx{Flags: map[string]bool{}}
}

func (c *testCtx) record(step string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = append(c.trace, step)
}

func (c *testCtx) Trace() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.trace...)
}

var errBoom = errors.New("boom")

// recordProcess appends its key to the context trace.
type recordProcess struct {
	key string
}

func (p *recordProcess) Execute(_ context.Context, c *testCtx) error {
	c.record(p.key)
	return nil
}

// newTestRegistry registers a recording process for every key.
func newTestRegistry(t *testing.T, keys ...ProcessKey) *Registry[*testCtx] {
	t.Helper()
	reg := NewRegistry[*testCtx]()
	for _, k := range keys {
		key := string(k)
		if err := reg.Register(k, func() Process[*testCtx] { return &recordProcess{key: key} }); err != nil {
			t.Fatalf("Register(%s): %v", k, err)
		}
	}
	return reg
}

func historyNames(h []ProcessHistory) []string {
	out := make([]string, len(h))
	for i, e := range h {
		out[i] = e.Name
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildSaleFlow builds A → B → branch T{ C(cond) → D ; E } → F, with C's
// condition reading the "C" flag.
func buildSaleFlow(t *testing.T) *Graph[*testCtx] {
	t.Helper()
	b := NewBuilder[*testCtx]("sale")
	b.Begin("A", NodeID("A")).
		AddNext("B", NodeID("B")).
		AddBranch("T", func(tb *Builder[*testCtx]) {
			tb.Begin("C", NodeID("C")).
				WithCondition(func(c *testCtx) bool { return c.Flags["C"] }).
				AddNext("D", NodeID("D"))
			tb.Begin("E", NodeID("E"))
		}).
		AddNext("F", NodeID("F"))

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}
