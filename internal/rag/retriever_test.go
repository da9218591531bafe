package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestNewRetriever_Validation(t *testing.T) {
	t.Parallel()

	idx := newQdrantIndex(newFakeQdrant(), time.Second)

	_, err := NewRetriever(nil, idx, "docs", 5)
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	_, err = NewRetriever(&stubEmbedder{}, nil, "docs", 5)
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	_, err = NewRetriever(&stubEmbedder{}, idx, " ", 5)
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
}

func TestRetrieve_BlankQuery(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	emb := &stubEmbedder{}
	r, err := NewRetriever(emb, newQdrantIndex(fake, time.Second), "docs", 5)
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), "   \n", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, emb.calls)
	assert.Empty(t, fake.queries)
}

func TestRetrieve_PrefersContentSibling(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.collections["docs"] = qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: 2})
	fake.results = []*qdrant.ScoredPoint{
		{Score: 0.7, Payload: qdrant.NewValueMap(map[string]any{"text": "hit", "source_id": "s.txt", "chunk_index": 0})},
	}
	r, err := NewRetriever(&stubEmbedder{}, newQdrantIndex(fake, time.Second), "docs", 5)
	require.NoError(t, err)
	ctx := context.Background()

	// Base only: unnamed search on the base collection.
	_, err = r.Retrieve(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, "docs", fake.queries[0].GetCollectionName())
	assert.Nil(t, fake.queries[0].Using)

	// Sibling appears between calls and is picked up without restarting.
	fake.collections["docs__content"] = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{"content": {Size: 2}})
	got, err := r.Retrieve(ctx, "q", 0)
	require.NoError(t, err)
	assert.Equal(t, "docs__content", fake.queries[1].GetCollectionName())
	assert.Equal(t, "content", fake.queries[1].GetUsing())
	assert.Equal(t, uint64(5), fake.queries[1].GetLimit())
	assert.Equal(t, []RetrievedPassage{{Text: "hit", SourceID: "s.txt", Score: 0.7}}, got)
}

func TestRetrieve_NamedBaseUsesDetectedSlot(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.collections["docs"] = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{"content": {Size: 2}})
	r, err := NewRetriever(&stubEmbedder{}, newQdrantIndex(fake, time.Second), "docs", 5)
	require.NoError(t, err)

	schema, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CollectionSchema{Collection: "docs", Vector: Named("content")}, schema)
}

func TestRetrieve_AmbiguousBaseFallsBackToUnnamed(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.collections["docs"] = &qdrant.VectorsConfig{}
	r, err := NewRetriever(&stubEmbedder{}, newQdrantIndex(fake, time.Second), "docs", 5)
	require.NoError(t, err)

	schema, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CollectionSchema{Collection: "docs", Vector: Unnamed()}, schema)
}

func TestRetrieve_Failures(t *testing.T) {
	t.Parallel()

	t.Run("embedding", func(t *testing.T) {
		t.Parallel()
		r, err := NewRetriever(&stubEmbedder{err: errors.New("model down")}, newQdrantIndex(newFakeQdrant(), time.Second), "docs", 5)
		require.NoError(t, err)
		_, err = r.Retrieve(context.Background(), "q", 5)
		assert.ErrorIs(t, err, ErrIndexUnavailable)
	})

	t.Run("missing base", func(t *testing.T) {
		t.Parallel()
		r, err := NewRetriever(&stubEmbedder{}, newQdrantIndex(newFakeQdrant(), time.Second), "docs", 5)
		require.NoError(t, err)
		_, err = r.Retrieve(context.Background(), "q", 5)
		assert.ErrorIs(t, err, ErrIndexUnavailable)
	})

	t.Run("index down", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.err = errors.New("unavailable")
		r, err := NewRetriever(&stubEmbedder{}, newQdrantIndex(fake, time.Second), "docs", 5)
		require.NoError(t, err)
		_, err = r.Retrieve(context.Background(), "q", 5)
		assert.ErrorIs(t, err, ErrIndexUnavailable)
	})
}
