package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal  *prometheus.CounterVec
	AuthzDenialsTotal    *prometheus.CounterVec
	AuthzBypassTotal     *prometheus.CounterVec
	AuthzResolveDuration prometheus.Histogram

	// Bulk operation metrics
	BulkItemsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croplink_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "croplink_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croplink_authz_decisions_total",
				Help: "Authorization decisions by final outcome",
			},
			[]string{"outcome"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croplink_authz_denials_total",
				Help: "Authorization denials by stage and denial kind",
			},
			[]string{"stage", "kind"},
		),
		AuthzBypassTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croplink_authz_platform_admin_bypass_total",
				Help: "Guard stages bypassed by platform admins",
			},
			[]string{"stage"},
		),
		AuthzResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "croplink_authz_resolve_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		BulkItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "croplink_bulk_items_total",
				Help: "Bulk operation items by outcome",
			},
			[]string{"operation", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "croplink_db_connections_active",
			Help: "Active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "croplink_db_connections_idle",
			Help: "Idle database connections",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzDenialsTotal,
		m.AuthzBypassTotal,
		m.AuthzResolveDuration,
		m.BulkItemsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision records the final outcome of a guard chain evaluation
func (m *Metrics) RecordDecision(allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordDenial records a denial at a specific guard stage
func (m *Metrics) RecordDenial(stage, kind string) {
	m.AuthzDenialsTotal.WithLabelValues(stage, kind).Inc()
}

// RecordBypass records a platform-admin bypass of a guard stage
func (m *Metrics) RecordBypass(stage string) {
	m.AuthzBypassTotal.WithLabelValues(stage).Inc()
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
