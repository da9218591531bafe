package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/groundrag/internal/engine"
	"github.com/54b3r/groundrag/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout so a slow answer is not cut off mid-write.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds one POST /v1/query, retry pass included
	// (default: 3m).
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /v1/query (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is required on /v1/* routes, either as X-API-Key or as a Bearer
	// token. If empty, authentication is disabled (open mode).
	APIKey string
	// QueryLog records every answered query. Optional.
	QueryLog store.QueryLog
	// Health is reported verbatim by GET /health.
	Health HealthInfo
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// HealthInfo describes the configured backends without probing them.
type HealthInfo struct {
	// Provider is the generation backend (e.g. "ollama", "echo").
	Provider string
	// Model is the model or deployment name.
	Model string
	// ProviderConfigured is false when answers come from the echo fallback.
	ProviderConfigured bool
	// VectorDBConfigured is true when a Qdrant host is set.
	VectorDBConfigured bool
	// Collection is the base Qdrant collection.
	Collection string
}

// queryRunner is the interface handleQuery calls to answer a question.
// *engine.Engine satisfies it; tests inject a fake.
type queryRunner interface {
	Run(ctx context.Context, query string, topK int, rerank bool) (*engine.QueryResult, error)
}

// Server is the HTTP server that exposes the query engine.
type Server struct {
	// runner answers POST /v1/query.
	runner queryRunner
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /v1/query.
type queryRequest struct {
	// Query is the user question. Must be non-blank.
	Query string `json:"query"`
	// TopK is the number of passages to answer from. Nil means defaultTopK.
	TopK *int `json:"top_k"`
	// Rerank enables the cross-encoder pass.
	Rerank bool `json:"rerank"`
}

// errorResponse is the JSON body of every non-2xx response from /v1/*.
type errorResponse struct {
	// Error is a human-readable failure reason.
	Error string `json:"error"`
}

// historyResponse is the JSON body for GET /v1/history.
type historyResponse struct {
	// Entries are the most recent queries, oldest first.
	Entries []store.Entry `json:"entries"`
}

// healthResponse is the JSON body for GET /health.
type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp int64          `json:"timestamp"`
	Version   string         `json:"version"`
	System    systemStatus   `json:"system"`
	Model     modelStatus    `json:"model"`
	VectorDB  vectorDBStatus `json:"vectordb"`
}

type systemStatus struct {
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

type modelStatus struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Configured bool   `json:"configured"`
}

type vectorDBStatus struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
	Collection string `json:"collection"`
}
