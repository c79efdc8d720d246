// Package telemetry provides application-level observability for the timesheet
// audit service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<TSH_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. When the port is set to 0 the Gin router mounts
// /metrics itself instead.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit record writes, write failures and write latency
//   - Retention cleanup deletions and archive uploads
//   - Rate limiter rejections
//   - Database connection pool gauge (polled every 30 s)
//
// HTTP metrics use c.FullPath() rather than the raw request URL so that
// record IDs in paths do not create unbounded label cardinality.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
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

// Audit trail metrics.
//
// AuditRecordsTotal counts persisted records by {action, status}. A FAILURE
// spike on DELETE is usually worth a look:
//
//	sum by (action) (rate(timesheet_audit_records_total{status="FAILURE"}[15m]))
//
// AuditWriteFailuresTotal counts records lost because the store rejected the
// write. Writes are best-effort so this is the only trace of a lost record.
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesheet_audit_records_total",
			Help: "Total number of audit records persisted, by action and status.",
		},
		[]string{"action", "status"},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timesheet_audit_write_failures_total",
			Help: "Total number of audit records that could not be persisted.",
		},
	)

	AuditWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timesheet_audit_write_duration_seconds",
			Help:    "Latency of a single audit record write.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditCleanupDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timesheet_audit_cleanup_deleted_total",
			Help: "Total number of audit records removed by retention cleanup.",
		},
	)

	AuditArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesheet_audit_archive_uploads_total",
			Help: "Total number of retention archive uploads, by result.",
		},
		[]string{"result"},
	)
)

// RateLimitRejectionsTotal counts requests refused by the rate limiter, by backend.
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "timesheet_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by limiter backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks open connections in the sql.DB pool. It is sampled
// every 30 seconds by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds. The
// goroutine exits once the database becomes unreachable, which happens when
// main closes it on shutdown.
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
