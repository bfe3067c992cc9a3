// Package metrics provides Prometheus metrics for digest runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "registerdigest"

// Collector groups the run metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	DocumentsExcluded  *prometheus.CounterVec
	SummariesTotal     *prometheus.CounterVec
	CompletionAttempts prometheus.Counter
	DeliveriesTotal    *prometheus.CounterVec
	SummarizeDuration  prometheus.Histogram
	LastRunTimestamp   prometheus.Gauge
}

// New registers all metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),
		DocumentsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_excluded_total",
			Help:      "Documents left out of summarization input",
		}, []string{"reason"}),
		SummariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Interest summaries by outcome",
		}, []string{"outcome"}),
		CompletionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_attempts_total",
			Help:      "Completion requests issued, retries included",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Digest deliveries by status",
		}, []string{"status"}),
		SummarizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarize_duration_seconds",
			Help:      "Time spent summarizing one interest, retries included",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}
	c.registry.MustRegister(
		c.RunsTotal,
		c.DocumentsExcluded,
		c.SummariesTotal,
		c.CompletionAttempts,
		c.DeliveriesTotal,
		c.SummarizeDuration,
		c.LastRunTimestamp,
	)
	return c
}

// Handler exposes the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRun counts a finished run; outcome is "completed", "not_published" or "failed".
func (c *Collector) RecordRun(outcome string, unixSeconds float64) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(outcome).Inc()
	c.LastRunTimestamp.Set(unixSeconds)
}

// RecordExclusion counts a document excluded from a batch.
func (c *Collector) RecordExclusion(reason string) {
	if c == nil {
		return
	}
	c.DocumentsExcluded.WithLabelValues(reason).Inc()
}

// RecordSummary counts one interest outcome: "summarized", "placeholder" or "failed".
func (c *Collector) RecordSummary(outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.SummariesTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		c.SummarizeDuration.Observe(seconds)
	}
}

// RecordAttempts adds completion attempts.
func (c *Collector) RecordAttempts(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.CompletionAttempts.Add(float64(n))
}

// RecordDelivery counts a digest delivery: "sent" or "failed".
func (c *Collector) RecordDelivery(status string) {
	if c == nil {
		return
	}
	c.DeliveriesTotal.WithLabelValues(status).Inc()
}
