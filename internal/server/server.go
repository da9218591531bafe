// Package server implements the HTTP API that exposes the query engine:
// POST /v1/query answers a question with citations and a groundedness score,
// GET /v1/history lists recently answered queries, and GET /health,
// GET /api/ready and GET /metrics serve operators.
// The server is started by the `groundrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/groundrag/internal/engine"
	"github.com/54b3r/groundrag/internal/logging"
	"github.com/54b3r/groundrag/internal/rag"
	"github.com/54b3r/groundrag/internal/store"
	"github.com/54b3r/groundrag/internal/version"
)

const (
	// defaultTopK applies when a query request omits top_k.
	defaultTopK = 5
	// defaultHistoryLimit applies when GET /v1/history omits limit.
	defaultHistoryLimit = 20
	// maxHistoryLimit caps GET /v1/history.
	maxHistoryLimit = 500
	// maxRequestBytes caps a query request body.
	maxRequestBytes = 1 << 20
)

// New constructs a Server around runner. runner is typically an *engine.Engine.
func New(runner queryRunner, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server: query runner must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 3 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.QueryTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		runner:  runner,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	rl.onReject = s.metrics.rateLimitedTotal.Inc
	s.stopRL = stop

	if cfg.APIKey == "" {
		log.Warn("API key not set, /v1 routes are unauthenticated")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/query", s.instrument("query",
		authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleQuery)))))
	mux.Handle("GET /v1/history", s.instrument("history",
		authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleHistory))))
	mux.Handle("GET /health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped root handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /v1/query. The engine only fails for an invalid
// request (400) or an unreachable index or generator (503); everything the
// engine degrades on internally still yields 200.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 1 || topK > engine.MaxTopK {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", engine.MaxTopK))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queriesInFlight.Inc()
	start := time.Now()
	res, err := s.runner.Run(ctx, req.Query, topK, req.Rerank)
	elapsed := time.Since(start)
	s.metrics.queriesInFlight.Dec()

	if err != nil {
		status, outcome := classifyQueryError(err)
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		log.Error("query failed",
			slog.String("outcome", outcome),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		writeError(w, status, err.Error())
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcomeOK).Observe(elapsed.Seconds())
	s.metrics.observeResult(res)

	if s.cfg.QueryLog != nil {
		// The answer is already computed; a logging failure must not lose it.
		if _, err := s.cfg.QueryLog.Record(ctx, store.NewEntry(req.Query, topK, req.Rerank, res)); err != nil {
			log.Warn("query log write failed", slog.Any("error", err))
		}
	}

	attrs := []any{
		slog.Int("top_k", topK),
		slog.Bool("rerank", req.Rerank),
		slog.Int("citations", len(res.Citations)),
		slog.Bool("retry_attempted", res.Retry.Attempted),
		slog.Duration("elapsed", elapsed),
	}
	if res.Groundedness != nil {
		attrs = append(attrs, slog.Float64("groundedness", *res.Groundedness))
	}
	log.Info("query answered", attrs...)

	writeJSON(w, http.StatusOK, res)
}

// handleHistory handles GET /v1/history?limit=N. It returns 404 when the
// server runs without a query log.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.QueryLog == nil {
		writeError(w, http.StatusNotFound, "query log is disabled")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	entries, err := s.cfg.QueryLog.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("query log read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query log unavailable")
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// handleHealth handles GET /health for liveness checks. It reports static
// configuration only; /api/ready probes the dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.cfg.Health
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		Version:   version.Version,
		System: systemStatus{
			Go:       runtime.Version(),
			Platform: runtime.GOOS + "/" + runtime.GOARCH,
		},
		Model: modelStatus{
			Provider:   h.Provider,
			Model:      h.Model,
			Configured: h.ProviderConfigured,
		},
		VectorDB: vectorDBStatus{
			Provider:   "qdrant",
			Configured: h.VectorDBConfigured,
			Collection: h.Collection,
		},
	})
}

// classifyQueryError maps an engine error to an HTTP status and metric outcome.
func classifyQueryError(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrConfigurationInvalid):
		return http.StatusBadRequest, outcomeInvalid
	case engine.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable, outcomeUnavailable
	default:
		return http.StatusInternalServerError, outcomeError
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes an errorResponse.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
