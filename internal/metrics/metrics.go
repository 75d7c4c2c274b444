// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreWritesTotal counts task store writes by result (ok/error).
	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayplanner_store_writes_total",
			Help: "Total number of task store writes by result",
		},
		[]string{"result"},
	)

	// StoreEvictionsTotal counts dates dropped by the size cap.
	StoreEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dayplanner_store_evictions_total",
			Help: "Total number of dates evicted to keep the store under its size cap",
		},
	)

	StoreSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dayplanner_store_size_bytes",
			Help: "Serialized size of the committed task store",
		},
	)

	// RemindersTotal counts reminder notifications by status (sent/failed).
	RemindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayplanner_reminders_total",
			Help: "Total number of reminder notifications by status",
		},
		[]string{"status"},
	)

	// CacheLookupsTotal counts TTL cache lookups.
	// Labels: cache (weather/quotes), result (hit/miss/error)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayplanner_cache_lookups_total",
			Help: "Total number of TTL cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// UpstreamFetchDuration observes outbound calls in seconds.
	// Labels: upstream (weather/quotes), status (ok/error)
	UpstreamFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayplanner_upstream_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"upstream", "status"},
	)

	// HTTPRequestsTotal counts served requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayplanner_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// RecordReminder records one reminder delivery attempt.
func RecordReminder(ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	RemindersTotal.WithLabelValues(status).Inc()
}

// RecordUpstream records one upstream fetch.
func RecordUpstream(upstream string, seconds float64, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	UpstreamFetchDuration.WithLabelValues(upstream, status).Observe(seconds)
}
