package rag

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant is an in-memory stand-in for the Qdrant gRPC client.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*qdrant.VectorsConfig
	created     []string
	upserts     []*qdrant.UpsertPoints
	queries     []*qdrant.QueryPoints
	results     []*qdrant.ScoredPoint
	failCreate  bool
	err         error
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]*qdrant.VectorsConfig{}}
}

func (f *fakeQdrant) ListCollections(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	names := make([]string, 0, len(f.collections))
	for n := range f.collections {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

func (f *fakeQdrant) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeQdrant) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vc, ok := f.collections[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return infoWith(vc), nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("already exists")
	}
	f.collections[req.GetCollectionName()] = req.GetVectorsConfig()
	f.created = append(f.created, req.GetCollectionName())
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, req)
	return f.results, nil
}

func (f *fakeQdrant) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, f.err
}

func (f *fakeQdrant) Close() error { return nil }

func TestEnsureCollection_CreatesMissing(t *testing.T) {
	t.Parallel()

	for _, desired := range []VectorName{Unnamed(), Named("content")} {
		t.Run(desired.String(), func(t *testing.T) {
			t.Parallel()
			fake := newFakeQdrant()
			idx := newQdrantIndex(fake, time.Second)

			schema, err := idx.EnsureCollection(context.Background(), "docs", 4, desired)
			require.NoError(t, err)
			assert.Equal(t, CollectionSchema{Collection: "docs", Vector: desired}, schema)
			assert.Equal(t, []string{"docs"}, fake.created)

			got, err := ResolveSchema(infoWith(fake.collections["docs"]))
			require.NoError(t, err)
			assert.Equal(t, desired, got)
		})
	}
}

func TestEnsureCollection_SiblingForUnnamedBase(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.collections["docs"] = qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: 4})
	idx := newQdrantIndex(fake, time.Second)
	ctx := context.Background()

	first, err := idx.EnsureCollection(ctx, "docs", 4, Named("content"))
	require.NoError(t, err)
	assert.Equal(t, CollectionSchema{Collection: "docs__content", Vector: Named("content")}, first)

	second, err := idx.EnsureCollection(ctx, "docs", 4, Named("content"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"docs__content"}, fake.created, "sibling must be created exactly once")
}

func TestEnsureCollection_ExistingLayoutWins(t *testing.T) {
	t.Parallel()

	t.Run("named base is reused", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.collections["docs"] = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{"dense": {Size: 4}})
		idx := newQdrantIndex(fake, time.Second)

		schema, err := idx.EnsureCollection(context.Background(), "docs", 4, Named("content"))
		require.NoError(t, err)
		assert.Equal(t, CollectionSchema{Collection: "docs", Vector: Named("dense")}, schema)
		assert.Empty(t, fake.created)
	})

	t.Run("unnamed desired keeps unnamed base", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.collections["docs"] = qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: 4})
		idx := newQdrantIndex(fake, time.Second)

		schema, err := idx.EnsureCollection(context.Background(), "docs", 4, Unnamed())
		require.NoError(t, err)
		assert.Equal(t, CollectionSchema{Collection: "docs", Vector: Unnamed()}, schema)
		assert.Empty(t, fake.created)
	})
}

func TestEnsureCollection_Failures(t *testing.T) {
	t.Parallel()

	t.Run("list error", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.err = errors.New("connection refused")
		_, err := newQdrantIndex(fake, time.Second).EnsureCollection(context.Background(), "docs", 4, Unnamed())
		assert.ErrorIs(t, err, ErrIndexUnavailable)
	})

	t.Run("ambiguous layout", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.collections["docs"] = &qdrant.VectorsConfig{}
		_, err := newQdrantIndex(fake, time.Second).EnsureCollection(context.Background(), "docs", 4, Named("content"))
		assert.ErrorIs(t, err, ErrSchemaAmbiguous)
	})

	t.Run("create error", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.failCreate = true
		_, err := newQdrantIndex(fake, time.Second).EnsureCollection(context.Background(), "docs", 4, Unnamed())
		assert.ErrorIs(t, err, ErrIndexUnavailable)
	})
}

func TestUpsert(t *testing.T) {
	t.Parallel()

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		err := newQdrantIndex(fake, time.Second).Upsert(context.Background(), "docs",
			[][]float32{{1, 0}}, nil, Unnamed())
		assert.ErrorIs(t, err, ErrConfigurationInvalid)
		assert.Empty(t, fake.upserts)
	})

	t.Run("named points", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		err := newQdrantIndex(fake, time.Second).Upsert(context.Background(), "docs__content",
			[][]float32{{1, 0}, {0, 1}},
			[]Payload{{SourceID: "a.md", ChunkIndex: 0, Text: "x"}, {SourceID: "a.md", ChunkIndex: 1, Text: "y"}},
			Named("content"))
		require.NoError(t, err)
		require.Len(t, fake.upserts, 1)

		req := fake.upserts[0]
		assert.True(t, req.GetWait())
		require.Len(t, req.GetPoints(), 2)
		assert.NotEqual(t, req.GetPoints()[0].GetId().GetUuid(), req.GetPoints()[1].GetId().GetUuid())
		assert.Contains(t, req.GetPoints()[0].GetVectors().GetVectors().GetVectors(), "content")
		assert.Equal(t, int64(1), req.GetPoints()[1].GetPayload()[payloadChunkIndex].GetIntegerValue())
	})

	t.Run("non-ascii payload", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		text := "crème brûlée — déjà vu, 東京"
		err := newQdrantIndex(fake, time.Second).Upsert(context.Background(), "docs",
			[][]float32{{1, 0}}, []Payload{{SourceID: "café.md", Text: text}}, Unnamed())
		require.NoError(t, err)
		require.Len(t, fake.upserts, 1)
		payload := fake.upserts[0].GetPoints()[0].GetPayload()
		assert.Equal(t, text, payload[payloadText].GetStringValue())
		assert.Equal(t, "café.md", payload[payloadSourceID].GetStringValue())
	})

	t.Run("invalid utf-8 payload", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		var err error
		require.NotPanics(t, func() {
			err = newQdrantIndex(fake, time.Second).Upsert(context.Background(), "docs",
				[][]float32{{1, 0}}, []Payload{{SourceID: "a.md", Text: "résum\xc3"}}, Unnamed())
		})
		assert.ErrorIs(t, err, ErrConfigurationInvalid)
		assert.Empty(t, fake.upserts)
	})

	t.Run("index failure", func(t *testing.T) {
		t.Parallel()
		fake := newFakeQdrant()
		fake.err = context.DeadlineExceeded
		err := newQdrantIndex(fake, time.Second).Upsert(context.Background(), "docs",
			[][]float32{{1}}, []Payload{{Text: "x"}}, Unnamed())
		assert.ErrorIs(t, err, ErrIndexUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSearch(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.results = []*qdrant.ScoredPoint{
		{Score: 0.9, Payload: qdrant.NewValueMap(map[string]any{"text": "a", "source_id": "s.txt", "chunk_index": 2})},
		{Score: 0.5, Payload: qdrant.NewValueMap(map[string]any{"text": "b", "chunk_index": "7"})},
		{Score: 0.1},
	}
	idx := newQdrantIndex(fake, time.Second)

	got, err := idx.Search(context.Background(), "docs__content", []float32{1, 0}, 3, Named("content"))
	require.NoError(t, err)
	assert.Equal(t, []RetrievedPassage{
		{Text: "a", SourceID: "s.txt", ChunkIndex: 2, Score: 0.9},
		{Text: "b", ChunkIndex: 7, Score: 0.5},
		{Score: 0.1},
	}, got)

	require.Len(t, fake.queries, 1)
	assert.Equal(t, "content", fake.queries[0].GetUsing())
	assert.Equal(t, uint64(3), fake.queries[0].GetLimit())

	_, err = idx.Search(context.Background(), "docs", []float32{1, 0}, 3, Unnamed())
	require.NoError(t, err)
	assert.Nil(t, fake.queries[1].Using)
}

func TestLayout(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.collections["docs"] = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{"content": {Size: 4}})
	idx := newQdrantIndex(fake, time.Second)

	got, err := idx.Layout(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, Named("content"), got)

	_, err = idx.Layout(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

// deadlineQdrant records whether HealthCheck received a bounded context.
type deadlineQdrant struct {
	*fakeQdrant
	deadline time.Time
}

func (d *deadlineQdrant) HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error) {
	d.deadline, _ = ctx.Deadline()
	return d.fakeQdrant.HealthCheck(ctx)
}

func TestPing(t *testing.T) {
	t.Parallel()

	fake := &deadlineQdrant{fakeQdrant: newFakeQdrant()}
	before := time.Now()
	require.NoError(t, newQdrantIndex(fake, 2*time.Second).Ping(context.Background()))
	require.False(t, fake.deadline.IsZero(), "health check ran without a deadline")
	assert.WithinDuration(t, before.Add(2*time.Second), fake.deadline, time.Second)

	fake.err = errors.New("connection refused")
	assert.ErrorContains(t, newQdrantIndex(fake, time.Second).Ping(context.Background()), "connection refused")
}
