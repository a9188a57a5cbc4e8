// Package telemetry exposes workflow counters and latencies to Prometheus.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "covercat"

// Metrics holds the collectors for one process. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	stageRuns      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	escalations    *prometheus.CounterVec
	reviewActions  *prometheus.CounterVec
	batchItems     *prometheus.CounterVec
	rateLimitWaits *prometheus.CounterVec
	records        *prometheus.GaugeVec
}

// New registers the workflow collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		stageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_runs_total",
				Help:      "Stage handler invocations by outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Stage handler latency",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Records moved into review by stage and failure kind",
			},
			[]string{"stage", "kind"},
		),
		reviewActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_actions_total",
				Help:      "Operator review actions",
			},
			[]string{"action"},
		),
		batchItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_items_total",
				Help:      "Batch items by result",
			},
			[]string{"result"},
		),
		rateLimitWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_waits_total",
				Help:      "Inter-item delays applied after rate-limited stages",
			},
			[]string{"stage"},
		),
		records: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records",
				Help:      "Records by current stage and status at the last snapshot",
			},
			[]string{"stage", "status"},
		),
	}
	registry.MustRegister(
		m.stageRuns,
		m.stageDuration,
		m.escalations,
		m.reviewActions,
		m.batchItems,
		m.rateLimitWaits,
		m.records,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStage records one handler invocation.
func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Escalated counts a record entering review.
func (m *Metrics) Escalated(stage, kind string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(stage, kind).Inc()
}

// ReviewAction counts operator overrides by action.
func (m *Metrics) ReviewAction(action string) {
	if m == nil {
		return
	}
	m.reviewActions.WithLabelValues(action).Inc()
}

// BatchItem counts one coordinator item by result.
func (m *Metrics) BatchItem(result string) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(result).Inc()
}

// RateLimitWait counts a delay applied after stage.
func (m *Metrics) RateLimitWait(stage string) {
	if m == nil {
		return
	}
	m.rateLimitWaits.WithLabelValues(stage).Inc()
}

// SetRecordCounts replaces the record gauge with a fresh aggregate.
func (m *Metrics) SetRecordCounts(counts map[[2]string]int) {
	if m == nil {
		return
	}
	m.records.Reset()
	for key, n := range counts {
		m.records.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}
