// Package metrics exposes Prometheus collectors for the refresh pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RefreshRuns     *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	Changes         *prometheus.CounterVec
	FeedFailures    *prometheus.CounterVec
	SnapshotItems   *prometheus.GaugeVec
	LastRefresh     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fornews",
			Name:      "refresh_runs_total",
			Help:      "Refresh cycles by trigger and outcome.",
		}, []string{"source", "status"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fornews",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a fetch, compare and persist cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		Changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fornews",
			Name:      "changes_total",
			Help:      "News items added, updated or removed across refreshes.",
		}, []string{"kind"}),
		FeedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fornews",
			Name:      "feed_failures_total",
			Help:      "Feeds that could not be fetched or parsed.",
		}, []string{"feed"}),
		SnapshotItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fornews",
			Name:      "snapshot_items",
			Help:      "Items in the current snapshot per category.",
		}, []string{"category"}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fornews",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
	}

	reg.MustRegister(
		m.RefreshRuns,
		m.RefreshDuration,
		m.Changes,
		m.FeedFailures,
		m.SnapshotItems,
		m.LastRefresh,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRefresh records one finished refresh cycle.
func (m *Metrics) ObserveRefresh(source, status string, took time.Duration) {
	m.RefreshRuns.WithLabelValues(source, status).Inc()
	m.RefreshDuration.Observe(took.Seconds())
	if status != "failed" {
		m.LastRefresh.SetToCurrentTime()
	}
}

// ObserveChanges adds the counts of a change set.
func (m *Metrics) ObserveChanges(added, updated, removed int) {
	m.Changes.WithLabelValues("added").Add(float64(added))
	m.Changes.WithLabelValues("updated").Add(float64(updated))
	m.Changes.WithLabelValues("removed").Add(float64(removed))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
