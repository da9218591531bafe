// Package rerank re-scores retrieved passages against the query with a
// cross-encoder and re-sorts them. Reranking is optional: every failure is
// reported as rag.ErrRerankerUnavailable so the query engine can fall back to
// index order.
package rerank

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/54b3r/groundrag/internal/rag"
)

// Reranker re-scores (query, passage) pairs. Implementations must be safe for
// concurrent use.
type Reranker interface {
	// Rerank returns passages sorted by RerankScore descending, truncated to
	// topK. The input slice is not modified.
	Rerank(ctx context.Context, query string, passages []rag.RetrievedPassage, topK int) ([]rag.RetrievedPassage, error)
}

// Apply attaches scores[i] to passages[i], stable-sorts by rerank score
// descending, and truncates to topK (topK <= 0 keeps everything). Index
// scores are left untouched.
func Apply(passages []rag.RetrievedPassage, scores []float32, topK int) ([]rag.RetrievedPassage, error) {
	if len(scores) != len(passages) {
		return nil, fmt.Errorf("rerank: %d scores for %d passages: %w", len(scores), len(passages), rag.ErrRerankerUnavailable)
	}

	out := make([]rag.RetrievedPassage, len(passages))
	for i, p := range passages {
		out[i] = p.WithRerankScore(scores[i])
	}
	slices.SortStableFunc(out, func(a, b rag.RetrievedPassage) int {
		return cmp.Compare(b.RankScore(), a.RankScore())
	})

	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

// Unavailable is the Reranker used when no cross-encoder is configured.
// Every call returns rag.ErrRerankerUnavailable.
type Unavailable struct{}

// Rerank always fails with rag.ErrRerankerUnavailable.
func (Unavailable) Rerank(context.Context, string, []rag.RetrievedPassage, int) ([]rag.RetrievedPassage, error) {
	return nil, fmt.Errorf("rerank: no cross-encoder configured (set RERANKER_ENDPOINT): %w", rag.ErrRerankerUnavailable)
}
