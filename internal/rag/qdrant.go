package rag

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written at ingestion time and read back at query time.
const (
	payloadText       = "text"
	payloadSourceID   = "source_id"
	payloadChunkIndex = "chunk_index"
)

// defaultIndexTimeout bounds every remote index call.
const defaultIndexTimeout = 30 * time.Second

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Timeout bounds each remote call (default: 30s).
	Timeout time.Duration
}

// qdrantAPI is the subset of *qdrant.Client used by QdrantIndex.
type qdrantAPI interface {
	ListCollections(ctx context.Context) ([]string, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantIndex implements VectorIndex backed by a Qdrant instance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client qdrantAPI

	// timeout bounds each remote call.
	timeout time.Duration
}

// NewQdrantIndex connects to Qdrant and returns a ready-to-use index.
// No collection is created here; see EnsureCollection.
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", AsIndexFailure(err))
	}

	return newQdrantIndex(client, cfg.Timeout), nil
}

// newQdrantIndex wraps an existing client; tests pass a fake.
func newQdrantIndex(client qdrantAPI, timeout time.Duration) *QdrantIndex {
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}
	return &QdrantIndex{client: client, timeout: timeout}
}

// EnsureCollection returns the schema to use for writing dim-sized vectors
// into name with the desired layout.
//
//   - name missing: create it with the desired layout.
//   - name present: classify it with ResolveSchema. If it is unnamed while a
//     named layout is desired, use (creating if needed) the sibling
//     collection "<name>__<slot>" instead of migrating the original.
//     Otherwise use name with its detected layout.
//
// Calling it repeatedly with the same arguments returns the same schema and
// never creates a second sibling.
func (x *QdrantIndex) EnsureCollection(ctx context.Context, name string, dim uint64, desired VectorName) (CollectionSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	existing, err := x.client.ListCollections(ctx)
	if err != nil {
		return CollectionSchema{}, fmt.Errorf("qdrant: list collections: %w", AsIndexFailure(err))
	}

	if !slices.Contains(existing, name) {
		if err := x.create(ctx, name, dim, desired); err != nil {
			return CollectionSchema{}, err
		}
		return CollectionSchema{Collection: name, Vector: desired}, nil
	}

	info, err := x.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return CollectionSchema{}, fmt.Errorf("qdrant: get collection %q: %w", name, AsIndexFailure(err))
	}
	detected, err := ResolveSchema(info)
	if err != nil {
		return CollectionSchema{}, fmt.Errorf("qdrant: collection %q: %w", name, err)
	}

	if detected.IsNamed() || !desired.IsNamed() {
		return CollectionSchema{Collection: name, Vector: detected}, nil
	}

	sibling := SiblingName(name, desired.Name())
	if !slices.Contains(existing, sibling) {
		if err := x.create(ctx, sibling, dim, desired); err != nil {
			// Another writer may have created it between list and create.
			ok, exErr := x.client.CollectionExists(ctx, sibling)
			if exErr != nil || !ok {
				return CollectionSchema{}, err
			}
		}
	}
	return CollectionSchema{Collection: sibling, Vector: desired}, nil
}

// create creates a cosine collection with the given layout.
func (x *QdrantIndex) create(ctx context.Context, name string, dim uint64, vec VectorName) error {
	params := &qdrant.VectorParams{
		Size:     dim,
		Distance: qdrant.Distance_Cosine,
	}

	vectorsConfig := qdrant.NewVectorsConfig(params)
	if vec.IsNamed() {
		vectorsConfig = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vec.Name(): params,
		})
	}

	err := x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig:  vectorsConfig,
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, AsIndexFailure(err))
	}
	return nil
}

// CollectionExists reports whether the named collection exists.
func (x *QdrantIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	ok, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", AsIndexFailure(err))
	}
	return ok, nil
}

// Layout fetches the collection info for name and classifies it with
// ResolveSchema.
func (x *QdrantIndex) Layout(ctx context.Context, name string) (VectorName, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	info, err := x.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return VectorName{}, fmt.Errorf("qdrant: get collection %q: %w", name, AsIndexFailure(err))
	}
	return ResolveSchema(info)
}

// Upsert writes one point per vector with a freshly generated UUID and waits
// for Qdrant to acknowledge the write.
func (x *QdrantIndex) Upsert(ctx context.Context, collection string, vectors [][]float32, payloads []Payload, vec VectorName) error {
	if len(vectors) != len(payloads) {
		return fmt.Errorf("qdrant: upsert: %d vectors for %d payloads: %w", len(vectors), len(payloads), ErrConfigurationInvalid)
	}
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for i, v := range vectors {
		p := payloads[i]

		vectorsField := qdrant.NewVectors(v...)
		if vec.IsNamed() {
			vectorsField = qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vec.Name(): qdrant.NewVector(v...),
			})
		}

		// TryValueMap rejects strings that are not valid UTF-8 instead of panicking.
		payload, err := qdrant.TryValueMap(map[string]any{
			payloadText:       p.Text,
			payloadSourceID:   p.SourceID,
			payloadChunkIndex: int64(p.ChunkIndex),
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert: payload %d (%s#%d): %v: %w",
				i, p.SourceID, p.ChunkIndex, err, ErrConfigurationInvalid)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: vectorsField,
			Payload: payload,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", AsIndexFailure(err))
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (x *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, topK int, vec VectorName) ([]RetrievedPassage, error) {
	if topK <= 0 {
		return nil, nil
	}

	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if vec.IsNamed() {
		req.Using = qdrant.PtrOf(vec.Name())
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	results, err := x.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", AsIndexFailure(err))
	}

	passages := make([]RetrievedPassage, 0, len(results))
	for _, r := range results {
		passages = append(passages, passageFromPayload(r.GetPayload(), r.GetScore()))
	}
	return passages, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (x *QdrantIndex) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if _, err := x.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (x *QdrantIndex) Close() error {
	return x.client.Close()
}

// passageFromPayload converts a Qdrant payload into a RetrievedPassage.
// Missing keys yield zero values.
func passageFromPayload(p map[string]*qdrant.Value, score float32) RetrievedPassage {
	passage := RetrievedPassage{Score: score}
	if p == nil {
		return passage
	}
	passage.Text = p[payloadText].GetStringValue()
	passage.SourceID = p[payloadSourceID].GetStringValue()

	// chunk_index may have been written as an integer, a double, or a string
	// by other ingestion tools.
	if v, ok := p[payloadChunkIndex]; ok {
		switch k := v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			passage.ChunkIndex = int(k.IntegerValue)
		case *qdrant.Value_DoubleValue:
			passage.ChunkIndex = int(k.DoubleValue)
		case *qdrant.Value_StringValue:
			if n, err := strconv.Atoi(k.StringValue); err == nil {
				passage.ChunkIndex = n
			}
		}
	}
	return passage
}
