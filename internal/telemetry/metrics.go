// Package telemetry provides logging and Prometheus metrics for the gateway.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served by
// the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<CARELINE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Login outcomes and live session count
//   - Admission decisions by stage and reason
//   - Response generation outcomes and latency
//   - Audit write outcomes
//   - Database connection pool gauge (polled every 30 s)
//
// No metric carries query text, answers, emails or tokens as a label value.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, Gin route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
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

// Session metrics.
//
// LoginAttemptsTotal has label {result}: success, invalid_credentials, invalid_input, store_error.
// ActiveSessions tracks sessions held by the in-process store; the Redis store leaves it untouched.
var (
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careline_login_attempts_total",
			Help: "Total number of login attempts, by result.",
		},
		[]string{"result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "careline_active_sessions",
			Help: "Current number of live sessions in the in-process session store.",
		},
	)
)

// AdmissionDecisionsTotal has labels {stage, reason}. stage is "pre" or "post";
// reason is ok, keyword_miss or policy_reject.
//
// Example PromQL queries:
//   - Share of off-topic queries:  sum(rate(careline_admission_decisions_total{reason="keyword_miss"}[1h])) / sum(rate(careline_admission_decisions_total{stage="pre"}[1h]))
var AdmissionDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "careline_admission_decisions_total",
		Help: "Total number of admission filter decisions, by stage and reason.",
	},
	[]string{"stage", "reason"},
)

// Generation metrics.
//
// GenerationRequestsTotal has label {outcome}: ok, unavailable, clinic.
// An alert on rate(careline_generation_requests_total{outcome="unavailable"}[5m]) > 0
// catches backend outages that users only see as canned answers.
var (
	GenerationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careline_generation_requests_total",
			Help: "Total number of answer generation attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "careline_generation_duration_seconds",
			Help:    "Latency of calls to the response generator, including failed calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)
)

// AuditWritesTotal has label {status}: ok or error. Failed writes never surface to
// callers, so this counter is the only signal that the trail has gaps.
var AuditWritesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "careline_audit_writes_total",
		Help: "Total number of audit record writes, by status.",
	},
	[]string{"status"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds. The goroutine exits when the database becomes
// unreachable, which happens at shutdown once db.Close() runs.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
