// Package metrics defines the Prometheus instruments for the pipeline and the dashboard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitals"

// Stage names used as the "stage" label
const (
	StageCollect   = "collect"
	StageStructure = "structure"
	StageLoad      = "load"
)

// Snapshot load results used as the "result" label
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics holds all vitals Prometheus metrics
type Metrics struct {
	// Pipeline metrics
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Record metrics
	RecordsFlattened prometheus.Counter
	RecordsSkipped   prometheus.Counter
	RowsUpserted     prometheus.Counter

	// Dashboard metrics
	SnapshotLoads *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every metric on reg. A nil reg gets a private registry,
// which keeps tests and repeated constructions from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	initPipelineMetrics(m, factory)
	initRecordMetrics(m, factory)
	initDashboardMetrics(m, factory)
	return m
}

func initPipelineMetrics(m *Metrics, f promauto.Factory) {
	m.StageDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Wall time of one pipeline stage",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	m.StageFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_failures_total",
		Help:      "Pipeline stages that returned an error",
	}, []string{"stage"})
}

func initRecordMetrics(m *Metrics, f promauto.Factory) {
	m.RecordsFlattened = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_flattened_total",
		Help:      "Records produced by the flattener",
	})

	m.RecordsSkipped = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Entries the flattener skipped with a warning",
	})

	m.RowsUpserted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_upserted_total",
		Help:      "Rows the store reported as written",
	})
}

func initDashboardMetrics(m *Metrics, f promauto.Factory) {
	m.SnapshotLoads = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dashboard_snapshot_loads_total",
		Help:      "Dashboard snapshot lookups by result (hit, miss, error)",
	}, []string{"result"})
}

// ObserveStage records the duration of a stage and counts it as failed when err is set
func (m *Metrics) ObserveStage(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveSnapshot counts one dashboard snapshot lookup
func (m *Metrics) ObserveSnapshot(result string) {
	if m == nil {
		return
	}
	m.SnapshotLoads.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
