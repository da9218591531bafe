package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/54b3r/groundrag/internal/logging"
)

// ContentVector is the named vector slot ingestion writes to.
const ContentVector = "content"

// DefaultRetriever implements the Retriever interface by combining an Embedder
// and a VectorIndex. It embeds the query at retrieval time and delegates
// similarity search to the index.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the vector similarity search.
	index VectorIndex

	// collection is the base collection name; the "<base>__content" sibling
	// is preferred when present.
	collection string

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever over the base collection.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, index VectorIndex, collection string, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil: %w", ErrConfigurationInvalid)
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil: %w", ErrConfigurationInvalid)
	}
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("rag: collection name must not be empty: %w", ErrConfigurationInvalid)
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &DefaultRetriever{
		embedder:    embedder,
		index:       index,
		collection:  collection,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant passages.
// A blank query returns no passages without touching the index.
// If topK is 0 the defaultTopK configured at construction time is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedPassage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", AsIndexFailure(err))
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query: %w", ErrIndexUnavailable)
	}

	// Resolved on every call: ingestion may create the sibling while the
	// service is running.
	schema, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	passages, err := r.index.Search(ctx, schema.Collection, embeddings[0], topK, schema.Vector)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", AsIndexFailure(err))
	}

	return passages, nil
}

// Resolve picks the collection and vector slot to query. The
// "<base>__content" sibling wins when it exists. Otherwise the base
// collection is used with its detected layout, falling back to the unnamed
// vector when the layout cannot be classified.
func (r *DefaultRetriever) Resolve(ctx context.Context) (CollectionSchema, error) {
	sibling := SiblingName(r.collection, ContentVector)
	ok, err := r.index.CollectionExists(ctx, sibling)
	if err != nil {
		return CollectionSchema{}, fmt.Errorf("rag: resolve collection: %w", AsIndexFailure(err))
	}
	if ok {
		return CollectionSchema{Collection: sibling, Vector: Named(ContentVector)}, nil
	}

	vec, err := r.index.Layout(ctx, r.collection)
	switch {
	case err == nil:
	case errors.Is(err, ErrSchemaAmbiguous):
		logging.FromContext(ctx).WarnContext(ctx, "rag: collection layout ambiguous, using unnamed vector",
			"collection", r.collection,
		)
		vec = Unnamed()
	default:
		return CollectionSchema{}, fmt.Errorf("rag: resolve collection: %w", AsIndexFailure(err))
	}
	return CollectionSchema{Collection: r.collection, Vector: vec}, nil
}
