package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by all endpoints.
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
)

// Session lifecycle metrics.
var (
	sessionInitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_init_duration_seconds",
		Help:    "Time until the session lifecycle controller settles after startup.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 8, 10},
	})

	roleResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_resolutions_total",
			Help: "Role resolution outcomes by resolved role (none for unprovisioned).",
		},
		[]string{"role"},
	)

	impersonationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impersonations_total",
			Help: "Impersonation transitions by phase and outcome.",
		},
		[]string{"phase", "outcome"},
	)

	idleSignOutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idle_sign_outs_total",
		Help: "Forced sign-outs triggered by the inactivity monitor.",
	})
)

// Init registers all collectors in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		sessionInitDuration, roleResolutionsTotal, impersonationsTotal,
		idleSignOutsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSessionInit records how long initialization took to settle.
func ObserveSessionInit(d time.Duration) {
	sessionInitDuration.Observe(d.Seconds())
}

// CountRoleResolution records a resolution outcome. Empty role counts as "none".
func CountRoleResolution(role string) {
	if role == "" {
		role = "none"
	}
	roleResolutionsTotal.WithLabelValues(role).Inc()
}

// CountImpersonation records an impersonation phase transition.
func CountImpersonation(phase, outcome string) {
	impersonationsTotal.WithLabelValues(phase, outcome).Inc()
}

// CountIdleSignOut records a forced sign-out from the inactivity monitor.
func CountIdleSignOut() {
	idleSignOutsTotal.Inc()
}

// Instrument wraps an HTTP handler with RPS/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := canonicalPath(r.URL.Path)
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

// canonicalPath keeps label cardinality bounded: unknown paths collapse
// into a single bucket.
func canonicalPath(path string) string {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/openapi.yaml", "/v1/info",
		"/functions/v1/impersonate-user", "/functions/v1/invite-user":
		return path
	}
	return "other"
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
