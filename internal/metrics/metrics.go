// Package metrics exposes import counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphload"

// Metrics holds the import metrics. A nil *Metrics or one created with
// enabled=false accepts every call and records nothing.
type Metrics struct {
	BatchesCommitted *prometheus.CounterVec
	BatchesFailed    *prometheus.CounterVec
	RecordsWritten   *prometheus.CounterVec
	RowsInvalid      *prometheus.CounterVec
	BatchRetries     *prometheus.CounterVec
	BatchesCompleted *prometheus.GaugeVec
	BatchesTotal     *prometheus.GaugeVec
	BatchDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
	enabled  bool
}

// New creates the metrics on a private registry.
func New(enabled bool) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry(), enabled: enabled}
	if !enabled {
		return m
	}

	m.BatchesCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_committed_total",
		Help:      "Batches written and checkpointed, by kind",
	}, []string{"kind"})

	m.BatchesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_failed_total",
		Help:      "Batches whose store write failed, by kind",
	}, []string{"kind"})

	m.RecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_written_total",
		Help:      "Nodes or edges sent to the store, by kind",
	}, []string{"kind"})

	m.RowsInvalid = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_invalid_total",
		Help:      "Source rows skipped by validation, by kind",
	}, []string{"kind"})

	m.BatchRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_retries_total",
		Help:      "Store write retries after transient errors, by kind",
	}, []string{"kind"})

	m.BatchesCompleted = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "kind_batches_completed",
		Help:      "Checkpointed batch count, by kind",
	}, []string{"kind"})

	m.BatchesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "kind_batches_total",
		Help:      "Total batch count, by kind",
	}, []string{"kind"})

	m.BatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_write_duration_seconds",
		Help:      "Time spent writing one batch to the store",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"kind"})

	m.registry.MustRegister(
		m.BatchesCommitted,
		m.BatchesFailed,
		m.RecordsWritten,
		m.RowsInvalid,
		m.BatchRetries,
		m.BatchesCompleted,
		m.BatchesTotal,
		m.BatchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Enabled reports whether metrics are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// BatchCommitted records a written and checkpointed batch.
func (m *Metrics) BatchCommitted(kind string, records int, d time.Duration, done, total int) {
	if !m.Enabled() {
		return
	}
	m.BatchesCommitted.WithLabelValues(kind).Inc()
	m.RecordsWritten.WithLabelValues(kind).Add(float64(records))
	m.BatchDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.BatchesCompleted.WithLabelValues(kind).Set(float64(done))
	m.BatchesTotal.WithLabelValues(kind).Set(float64(total))
}

// BatchFailed records a failed store write.
func (m *Metrics) BatchFailed(kind string) {
	if m.Enabled() {
		m.BatchesFailed.WithLabelValues(kind).Inc()
	}
}

// RowsSkipped records rows rejected by validation.
func (m *Metrics) RowsSkipped(kind string, n int) {
	if m.Enabled() && n > 0 {
		m.RowsInvalid.WithLabelValues(kind).Add(float64(n))
	}
}

// Retried records a retry of a store write.
func (m *Metrics) Retried(kind string) {
	if m.Enabled() {
		m.BatchRetries.WithLabelValues(kind).Inc()
	}
}

// Progress sets the checkpoint gauges for a kind.
func (m *Metrics) Progress(kind string, done, total int) {
	if !m.Enabled() {
		return
	}
	m.BatchesCompleted.WithLabelValues(kind).Set(float64(done))
	m.BatchesTotal.WithLabelValues(kind).Set(float64(total))
}
