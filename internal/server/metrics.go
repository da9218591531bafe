package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/groundrag/internal/engine"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	outcomeOK          = "ok"
	outcomeInvalid     = "invalid"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts /v1/query requests by outcome: "ok",
	// "invalid", "unavailable", or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records end-to-end engine latency, retry included.
	queryDurationSeconds *prometheus.HistogramVec

	// queriesInFlight is the number of queries currently inside the engine.
	queriesInFlight prometheus.Gauge

	// stageDurationSeconds records per-stage latency from QueryResult.Timings.
	// Retry stages carry their own "_retry" label value.
	stageDurationSeconds *prometheus.HistogramVec

	// groundedness records the accepted answer's groundedness score.
	groundedness prometheus.Histogram

	// retriesTotal counts retry passes by whether the retry answer was adopted.
	retriesTotal *prometheus.CounterVec

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default,
// keeping unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundrag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /v1/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groundrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Engine latency of /v1/query requests, retry pass included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}, []string{"outcome"}),

		queriesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "groundrag",
			Subsystem: "query",
			Name:      "in_flight",
			Help:      "Number of queries currently being answered.",
		}),

		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groundrag",
			Subsystem: "query",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage of a successful query.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		groundedness: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "groundrag",
			Subsystem: "query",
			Name:      "groundedness",
			Help:      "Groundedness score of accepted answers.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundrag",
			Subsystem: "query",
			Name:      "retries_total",
			Help:      "Total number of groundedness retries, partitioned by whether the retry answer was adopted.",
		}, []string{"adopted"}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groundrag",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-IP rate limiter.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groundrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeResult records the per-stage, groundedness and retry metrics of a
// successful query.
func (m *serverMetrics) observeResult(res *engine.QueryResult) {
	for stage, ms := range res.Timings {
		m.stageDurationSeconds.WithLabelValues(stage).Observe(ms / 1000)
	}
	if res.Groundedness != nil {
		m.groundedness.Observe(*res.Groundedness)
	}
	if res.Retry.Attempted {
		m.retriesTotal.WithLabelValues(strconv.FormatBool(res.Retry.Adopted)).Inc()
	}
}

// instrument wraps next with the HTTP request counter and latency histogram
// under the given handler label.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
	})
}
