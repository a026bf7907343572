// Package telemetry provides application-level observability for the CampusFace backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CFA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server every 15–60 seconds.
// It is NOT served by the Gin router, so it stays off the public ingress path and
// out of the rate-limiting middleware.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/codes/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as request or code identifiers.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authorization code metrics — recorded by the code engine.
//
// CodeValidationsTotal is a CounterVec with label {outcome}, one of:
// "authorized", "invalid", "expired", "member_missing", "forbidden".
// The split matters operationally: a spike in "invalid" is a brute-force
// signal, while a spike in "expired" usually means gate-side latency.
//
// Example PromQL queries:
//   - Validation rate by outcome:  sum by (outcome) (rate(code_validations_total[5m]))
//   - Brute-force alert:           increase(code_validations_total{outcome="invalid"}[10m]) > 100
var (
	CodesGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_generated_total",
			Help: "Total number of authorization codes generated.",
		},
	)

	CodeValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_validations_total",
			Help: "Total number of code validation attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	CodesExpiredSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_expired_swept_total",
			Help: "Total number of expired codes invalidated by the background sweep.",
		},
	)
)

// Request state-machine metrics — one CounterVec per request kind, labelled
// by transition ("created", "approved", "denied", "updated", "deleted").
var (
	EntryRequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entry_request_transitions_total",
			Help: "Total number of entry request state transitions, by transition.",
		},
		[]string{"transition"},
	)

	ChangeRequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_request_transitions_total",
			Help: "Total number of face change request state transitions, by transition.",
		},
		[]string{"transition"},
	)
)

// SyncEventsPublishedTotal counts membership events handed to the directory
// sync publisher, by result ("ok", "error"). Publishing is fire-and-forget,
// so this counter is the only place publish failures are visible besides logs.
var SyncEventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sync_events_published_total",
		Help: "Total number of directory sync events published, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and exports them as Prometheus gauges. The goroutine
// runs for the lifetime of the process.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
		}
	}()
	slog.Debug("database stats collector started")
}
