package flow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Node outcome labels used by PrometheusMetrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomePruned    = "pruned"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// PrometheusMetrics collects Prometheus metrics for flow runs.
//
// Metrics exposed (all namespaced with "simpleflow_"):
//
//  1. inflight_nodes (gauge): processes currently executing.
//  2. node_latency_ms (histogram): process execution time.
//     Labels: flow, node, status (success/error/timeout).
//  3. node_outcomes_total (counter): node outcomes.
//     Labels: flow, node, outcome (succeeded/skipped/pruned/failed/timeout).
//  4. runs_total (counter): finished runs. Labels: flow, status.
//  5. run_duration_ms (histogram): run wall time. Labels: flow.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewPrometheusMetrics(registry)
//	engine, _ := flow.New(g, reg, flow.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	nodeLatency   *prometheus.HistogramVec
	nodeOutcomes  *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the flow metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "simpleflow",
		Name:      "inflight_nodes",
		Help:      "Current number of processes executing",
	})

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "simpleflow",
		Name:      "node_latency_ms",
		Help:      "Process execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"flow", "node", "status"})

	pm.nodeOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "simpleflow",
		Name:      "node_outcomes_total",
		Help:      "Node outcomes by kind",
	}, []string{"flow", "node", "outcome"})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "simpleflow",
		Name:      "runs_total",
		Help:      "Finished runs by status",
	}, []string{"flow", "status"})

	pm.runDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "simpleflow",
		Name:      "run_duration_ms",
		Help:      "Run wall time in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"flow"})

	return pm
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// IncInflightNodes increments the inflight gauge.
func (pm *PrometheusMetrics) IncInflightNodes() {
	if pm.on() {
		pm.inflightNodes.Inc()
	}
}

// DecInflightNodes decrements the inflight gauge.
func (pm *PrometheusMetrics) DecInflightNodes() {
	if pm.on() {
		pm.inflightNodes.Dec()
	}
}

// RecordNodeLatency observes the execution time of a process.
func (pm *PrometheusMetrics) RecordNodeLatency(flow, node string, latency time.Duration, status string) {
	if pm.on() {
		pm.nodeLatency.WithLabelValues(flow, node, status).Observe(float64(latency.Milliseconds()))
	}
}

// RecordNodeOutcome counts a node outcome.
func (pm *PrometheusMetrics) RecordNodeOutcome(flow, node, outcome string) {
	if pm.on() {
		pm.nodeOutcomes.WithLabelValues(flow, node, outcome).Inc()
	}
}

// RecordRun counts a finished run and observes its duration.
func (pm *PrometheusMetrics) RecordRun(flow, status string, d time.Duration) {
	if pm.on() {
		pm.runs.WithLabelValues(flow, status).Inc()
		pm.runDuration.WithLabelValues(flow).Observe(float64(d.Milliseconds()))
	}
}

// Disable stops recording. Useful in tests.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears all metric values.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.inflightNodes.Set(0)
	pm.nodeLatency.Reset()
	pm.nodeOutcomes.Reset()
	pm.runs.Reset()
	pm.runDuration.Reset()
}
