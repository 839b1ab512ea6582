// Package telemetry exports Prometheus metrics for the visitor-analytics
// service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visitor_analytics"

// Ingest outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
	OutcomeBot      = "bot"
	OutcomeDropped  = "dropped"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry setup.
type Metrics struct {
	IngestTotal         *prometheus.CounterVec
	EventsDropped       prometheus.Counter
	EventsFlushed       prometheus.Counter
	FlushErrors         prometheus.Counter
	BufferDepth         prometheus.Gauge
	AggregationDuration prometheus.Histogram
	CacheResults        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Tracking calls received, by action and outcome",
		}, []string{"action", "outcome"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the write buffer was full",
		}),
		EventsFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_flushed_total",
			Help:      "Events written to PostgreSQL",
		}),
		FlushErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_errors_total",
			Help:      "Failed batch inserts",
		}),
		BufferDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_buffer_depth",
			Help:      "Events waiting in the write buffer at the last flush",
		}),
		AggregationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time to load and aggregate dashboard metrics",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_cache_total",
			Help:      "Dashboard metrics cache lookups by result",
		}, []string{"result"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordIngest counts one tracking call.
func (m *Metrics) RecordIngest(action, outcome string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(action, outcome).Inc()
}

// RecordDropped counts an event lost to a full buffer.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// RecordFlush counts the rows a flush wrote and whether any write failed.
func (m *Metrics) RecordFlush(written int, err error, pending int) {
	if m == nil {
		return
	}
	if err != nil {
		m.FlushErrors.Inc()
	}
	m.EventsFlushed.Add(float64(written))
	m.BufferDepth.Set(float64(pending))
}

// ObserveAggregation records how long a metrics computation took.
func (m *Metrics) ObserveAggregation(d time.Duration) {
	if m == nil {
		return
	}
	m.AggregationDuration.Observe(d.Seconds())
}

// RecordCache counts a cache lookup; result is hit, miss, bypass or error.
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.CacheResults.WithLabelValues(result).Inc()
}
