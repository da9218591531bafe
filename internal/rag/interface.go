// Package rag defines the retrieval side of the question-answering pipeline:
// the passage data model, the vector index and embedding contracts, the
// Qdrant-backed index with its schema resolution, and the retrieval service
// that the query engine calls. Untyped index payloads never leave this
// package; everything downstream works with [RetrievedPassage].
package rag

import (
	"context"
)

// RetrievedPassage is one scored text passage returned by the index.
// It is constructed once at the index boundary and treated as a value
// afterwards: Score is never modified once set.
type RetrievedPassage struct {
	// Text is the raw chunk text.
	Text string `json:"text"`

	// SourceID identifies the document the chunk was cut from (usually a path).
	SourceID string `json:"source_id"`

	// ChunkIndex is the 0-based position of the chunk within SourceID.
	ChunkIndex int `json:"chunk_index"`

	// Score is the index similarity score (cosine).
	Score float32 `json:"score"`

	// RerankScore is the cross-encoder score, nil when the passage was not
	// reranked. When present it supersedes Score for ordering only.
	RerankScore *float32 `json:"rerank_score,omitempty"`
}

// RankScore returns the score used for ordering: RerankScore when present,
// otherwise Score.
func (p RetrievedPassage) RankScore() float32 {
	if p.RerankScore != nil {
		return *p.RerankScore
	}
	return p.Score
}

// WithRerankScore returns a copy of p carrying the given rerank score.
func (p RetrievedPassage) WithRerankScore(s float32) RetrievedPassage {
	p.RerankScore = &s
	return p
}

// Payload is the typed point payload written at ingestion time.
type Payload struct {
	// SourceID identifies the originating document.
	SourceID string
	// ChunkIndex is the chunk's position within SourceID.
	ChunkIndex int
	// Text is the chunk text.
	Text string
}

// VectorName describes how a collection stores its embedding. The zero value
// is the unnamed (single vector) layout; [Named] selects a named vector slot.
type VectorName struct {
	name string
}

// Unnamed returns the single unnamed-vector layout.
func Unnamed() VectorName { return VectorName{} }

// Named returns the named-vector layout using the given slot. An empty name
// is equivalent to [Unnamed].
func Named(name string) VectorName { return VectorName{name: name} }

// IsNamed reports whether the layout uses named-vector storage.
func (v VectorName) IsNamed() bool { return v.name != "" }

// Name returns the vector slot name, or "" for the unnamed layout.
func (v VectorName) Name() string { return v.name }

// String implements fmt.Stringer for logging.
func (v VectorName) String() string {
	if !v.IsNamed() {
		return "unnamed"
	}
	return "named:" + v.name
}

// CollectionSchema identifies the physical collection and vector slot to use
// for reads and writes.
type CollectionSchema struct {
	// Collection is the physical collection name (possibly a sibling).
	Collection string
	// Vector is the vector layout of Collection.
	Vector VectorName
}

// VectorIndex is the interface for the vector store. Implementations must be
// safe to call from multiple goroutines.
type VectorIndex interface {
	// EnsureCollection makes sure a collection able to hold dim-sized vectors
	// in the desired layout exists, and returns the schema callers must use.
	// See [QdrantIndex.EnsureCollection] for the sibling-collection policy.
	EnsureCollection(ctx context.Context, name string, dim uint64, desired VectorName) (CollectionSchema, error)

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Layout classifies the vector layout of an existing collection.
	Layout(ctx context.Context, name string) (VectorName, error)

	// Search returns up to topK passages ranked by cosine similarity, descending.
	Search(ctx context.Context, collection string, vector []float32, topK int, vec VectorName) ([]RetrievedPassage, error)

	// Upsert writes vectors with their payloads. vectors[i] belongs to
	// payloads[i]. The write is acknowledged before Upsert returns.
	Upsert(ctx context.Context, collection string, vectors [][]float32, payloads []Payload, vec VectorName) error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice and every vector has
	// the same dimensionality.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches scored passages for a natural-language query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns up to topK passages for query, best first.
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievedPassage, error)
}
