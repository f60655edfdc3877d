package obs

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staffdesk.org/internal/auth"
)

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

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffdesk_authz_decisions_total",
			Help: "Role policy decisions by action and outcome.",
		},
		[]string{"action", "decision"},
	)

	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffdesk_upstream_calls_total",
			Help: "Calls to the identity provider, record store and locker.",
		},
		[]string{"component", "op", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staffdesk_upstream_call_duration_seconds",
			Help:    "Latency of upstream calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component", "op"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "staffdesk_build_info",
			Help: "Always 1; labels describe the running binary.",
		},
		[]string{"version", "commit", "go_version"},
	)

	initOnce sync.Once
)

// Init registers the collectors with the default registry and hooks policy
// decisions into the authz counter. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, upstreamCalls, upstreamDuration, buildInfo)
		auth.SetDecisionObserver(ObserveDecision)
	})
}

// SetBuildInfo publishes the binary version on staffdesk_build_info.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one policy decision.
func ObserveDecision(action auth.Action, d auth.Decision) {
	authzDecisions.WithLabelValues(string(action), d.String()).Inc()
}

// ObserveUpstream records the outcome of an upstream call started at start.
func ObserveUpstream(component, op string, start time.Time, err error) {
	upstreamCalls.WithLabelValues(component, op, upstreamOutcome(err)).Inc()
	upstreamDuration.WithLabelValues(component, op).Observe(time.Since(start).Seconds())
}

func upstreamOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrNotFound):
		return "not_found"
	default:
		return auth.Kind(auth.Upstream("", err))
	}
}

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses record identifiers so that metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "employees" && parts[2] != "":
		return "/api/employees/:id"
	case len(parts) == 2 && parts[0] == "delete-employee" && parts[1] != "":
		return "/delete-employee/:id"
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
