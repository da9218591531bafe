// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. The remote backends (OpenAI,
// Azure OpenAI, Ollama) speak their JSON APIs over net/http; the local backend
// runs an ONNX model in-process via hugot.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// openAIMaxInputs is the most inputs the embeddings API accepts per request.
const openAIMaxInputs = 2048

// OpenAIEmbedder calls the OpenAI embeddings API, or the Azure OpenAI
// deployment-scoped variant of it. Batches larger than the API limit are
// split transparently. Safe for concurrent use.
type OpenAIEmbedder struct {
	url        string
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" (or a compatible gateway), or
	// "https://<resource>.openai.azure.com/openai" when Azure is set.
	BaseURL string
	// APIKey is sent as a Bearer token, or as the api-key header for Azure.
	APIKey string
	// Model is the model name; for Azure it is the deployment name.
	Model string
	// Dimensions truncates vectors server-side when > 0 (text-embedding-3 only).
	Dimensions int
	// Azure selects deployment-scoped URLs and api-key auth.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
	// Timeout bounds each request.
	Timeout time.Duration
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		url:        cfg.BaseURL + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Azure {
		e.url = cfg.BaseURL + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *openaiEmbedResponse) errorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Embed returns one vector per text, in input order. An empty batch makes
// no request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := embedInBatches(ctx, texts, openAIMaxInputs, e.embedOnce)
	if err != nil {
		return nil, fmt.Errorf("openai embedder (%s): %w", e.model, err)
	}
	return vecs, nil
}

// embedOnce performs a single request. Results are placed by their index
// field since the API does not promise response order.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	var resp openaiEmbedResponse
	req := openaiEmbedRequest{Input: batch, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, e.url, e.header, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
	}

	out := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || out[d.Index] != nil {
			return nil, fmt.Errorf("invalid or duplicate embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
