package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/groundrag/internal/rag"
)

// DefaultModel is the cross-encoder served by default.
const DefaultModel = "BAAI/bge-reranker-v2-m3"

// Config holds the settings for constructing a CrossEncoderClient.
type Config struct {
	// Endpoint is the base URL of a text-embeddings-inference server hosting
	// a reranker model (e.g. "http://localhost:8080"). Empty disables reranking.
	Endpoint string
	// Model is informational; TEI serves one model per instance.
	Model string
	// APIKey is sent as a Bearer token when set.
	APIKey string
	// Timeout bounds each rerank call (default: 30s).
	Timeout time.Duration
}

// New returns a CrossEncoderClient when cfg.Endpoint is set, otherwise
// Unavailable.
func New(cfg *Config) Reranker {
	if cfg == nil || strings.TrimSpace(cfg.Endpoint) == "" {
		return Unavailable{}
	}
	return NewCrossEncoderClient(cfg)
}

// CrossEncoderClient scores passages with a remote cross-encoder exposed
// through the text-embeddings-inference /rerank API. Scores are requested
// normalised to [0,1].
type CrossEncoderClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewCrossEncoderClient constructs a CrossEncoderClient from cfg.
func NewCrossEncoderClient(cfg *Config) *CrossEncoderClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &CrossEncoderClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (c *CrossEncoderClient) Model() string { return c.model }

// rerankRequest is the JSON body sent to the /rerank endpoint.
type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

// rerankResult is one element of the /rerank response array.
type rerankResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// rerankError is the error body returned by the server on failure.
type rerankError struct {
	Error string `json:"error"`
}

// Rerank scores every passage against query and returns them sorted by
// RerankScore descending, truncated to topK.
func (c *CrossEncoderClient) Rerank(ctx context.Context, query string, passages []rag.RetrievedPassage, topK int) ([]rag.RetrievedPassage, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	payload, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rerank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w: %w", rag.ErrRerankerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rerank: read response: %w: %w", rag.ErrRerankerUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var e rerankError
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, fmt.Errorf("rerank: %s: %w", msg, rag.ErrRerankerUnavailable)
	}

	var results []rerankResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w: %w", rag.ErrRerankerUnavailable, err)
	}

	// The server returns results sorted by score; map them back by index.
	scores := make([]float32, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(passages) || seen[r.Index] {
			return nil, fmt.Errorf("rerank: invalid result index %d: %w", r.Index, rag.ErrRerankerUnavailable)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	if len(results) != len(passages) {
		return nil, fmt.Errorf("rerank: expected %d scores, got %d: %w", len(passages), len(results), rag.ErrRerankerUnavailable)
	}

	return Apply(passages, scores, topK)
}
