package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})
)

// Domain metrics for the permission/session core.
var (
	permissionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_checks_total",
			Help: "Permission resolver decisions by outcome and deciding tier.",
		},
		[]string{"decision", "source"},
	)

	sessionValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_validations_total",
			Help: "Session validator results by outcome and reason.",
		},
		[]string{"result", "reason"},
	)

	sessionBumpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_version_bumps_total",
			Help: "Session version increments by entity kind.",
		},
		[]string{"entity"},
	)

	auditAppendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_append_failures_total",
		Help: "Audit entries dropped because the store rejected them.",
	})

	revocationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revocation_events_published_total",
			Help: "Session revocation events published, by transport.",
		},
		[]string{"transport"},
	)
)

// Init registers all metrics with the default registry. Call once from main.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		permissionChecksTotal, sessionValidationsTotal, sessionBumpsTotal,
		auditAppendFailures, revocationEventsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// PermissionCheck counts one resolver decision.
func PermissionCheck(allowed bool, source string) {
	permissionChecksTotal.WithLabelValues(strconv.FormatBool(allowed), source).Inc()
}

// SessionValidation counts one validator outcome. Reason is empty for valid
// sessions.
func SessionValidation(valid bool, reason string) {
	result := "valid"
	if !valid {
		result = "revoked"
	}
	sessionValidationsTotal.WithLabelValues(result, reason).Inc()
}

// SessionBump counts one version increment for "tenant" or "user".
func SessionBump(entity string) {
	sessionBumpsTotal.WithLabelValues(entity).Inc()
}

// AuditAppendFailure counts one swallowed audit store error.
func AuditAppendFailure() {
	auditAppendFailures.Inc()
}

// RevocationPublished counts one revocation event, transport "local" or
// "redis".
func RevocationPublished(transport string) {
	revocationEventsTotal.WithLabelValues(transport).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric cardinality stays
// bounded without a pattern-aware router.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	if len(segments) >= 3 && segments[0] == "v1" {
		switch segments[1] {
		case "cargos", "users", "tenants":
			segments[2] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
