//go:build integration

package embedder

import (
	"context"
	"math"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration needs a running Ollama with the embedding
// model pulled:
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run Integration ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the defaults.
func TestOllamaEmbedder_Integration(t *testing.T) {
	cfg := &Config{
		Provider: "ollama",
		Endpoint: os.Getenv("OLLAMA_HOST"),
		Model:    os.Getenv("EMBEDDING_MODEL"),
		Timeout:  30 * time.Second,
	}
	emb, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	query := "How long do customers have to request a refund?"
	docs := []string{
		"Refunds are accepted within 30 days of purchase with a receipt.",
		"Qdrant stores dense vectors and serves cosine nearest-neighbour search.",
	}
	vecs, err := emb.Embed(ctx, append([]string{query}, docs...))
	if err != nil {
		t.Fatalf("Embed: %v (is the model pulled?)", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	t.Logf("dim=%d", len(vecs[0]))

	related, unrelated := cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2])
	t.Logf("cosine related=%.3f unrelated=%.3f", related, unrelated)
	if related <= unrelated {
		t.Errorf("refund passage should rank above the vector-db passage (%.3f <= %.3f)", related, unrelated)
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
