package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_RecordsRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)
	engine := newSaleEngine(t, WithMetrics(metrics))

	if err := engine.Run(context.Background(), newTestCtx()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("sale", "succeeded")); got != 1 {
		t.Errorf("runs_total{succeeded} = %v, want 1", got)
	}
	outcomes := map[string]string{
		"A": OutcomeSucceeded,
		"C": OutcomeSkipped,
		"D": OutcomePruned,
		"F": OutcomeSucceeded,
	}
	for node, outcome := range outcomes {
		if got := testutil.ToFloat64(metrics.nodeOutcomes.WithLabelValues("sale", node, outcome)); got != 1 {
			t.Errorf("node_outcomes_total{%s,%s} = %v, want 1", node, outcome, got)
		}
	}
	if got := testutil.ToFloat64(metrics.inflightNodes); got != 0 {
		t.Errorf("inflight_nodes = %v, want 0 after run", got)
	}
	// A, B, E, F executed.
	if got := testutil.CollectAndCount(metrics.nodeLatency); got != 4 {
		t.Errorf("node_latency_ms series = %d, want 4", got)
	}
}

func TestPrometheusMetrics_Failure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	b := NewBuilder[*testCtx]("metrics-failure")
	b.Begin("bad", NodeID("bad"))
	g, _ := b.Build()
	reg := NewRegistry[*testCtx]()
	reg.MustRegister("bad", func() Process[*testCtx] {
		return ProcessFunc[*testCtx](func(context.Context, *testCtx) error { return errBoom })
	})
	engine, err := New(g, reg, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := engine.Run(context.Background(), newTestCtx()); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("metrics-failure", "failed")); got != 1 {
		t.Errorf("runs_total{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.nodeOutcomes.WithLabelValues("metrics-failure", "bad", OutcomeFailed)); got != 1 {
		t.Errorf("node_outcomes_total{failed} = %v, want 1", got)
	}
}

func TestPrometheusMetrics_DisableAndNil(t *testing.T) {
	metrics := NewPrometheusMetrics(prometheus.NewRegistry())
	metrics.Disable()
	metrics.RecordNodeOutcome("f", "n", OutcomeSucceeded)
	if got := testutil.ToFloat64(metrics.nodeOutcomes.WithLabelValues("f", "n", OutcomeSucceeded)); got != 0 {
		t.Errorf("disabled metrics recorded %v", got)
	}

	metrics.Enable()
	metrics.RecordNodeOutcome("f", "n", OutcomeSucceeded)
	metrics.Reset()
	if got := testutil.CollectAndCount(metrics.nodeOutcomes); got != 0 {
		t.Errorf("Reset left %d series", got)
	}

	var none *PrometheusMetrics
	none.IncInflightNodes()
	none.RecordRun("f", "succeeded", 0)
}
