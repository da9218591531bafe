package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint, which
// accepts a whole batch per request. Safe for concurrent use.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL without a trailing slash
	// (e.g. "http://localhost:11434").
	Host string
	// Model is an embedding model already pulled into Ollama
	// (e.g. "nomic-embed-text").
	Model string
	// Timeout bounds each request.
	Timeout time.Duration
}

// NewOllamaEmbedder constructs an OllamaEmbedder.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    cfg.Host + "/api/embed",
		model:  cfg.Model,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (r *ollamaEmbedResponse) errorMessage() string { return r.Error }

// Embed returns one vector per text, in input order. An empty batch makes
// no request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := embedInBatches(ctx, texts, 0, func(ctx context.Context, batch []string) ([][]float32, error) {
		var resp ollamaEmbedResponse
		if err := postJSON(ctx, e.client, e.url, nil, ollamaEmbedRequest{Model: e.model, Input: batch}, &resp); err != nil {
			return nil, err
		}
		return resp.Embeddings, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder (%s): %w", e.model, err)
	}
	return vecs, nil
}
