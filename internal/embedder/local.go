package embedder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// defaultLocalModel is the sentence-transformer used when EMBEDDING_MODEL is
// unset for the local backend. It produces 768-dimensional vectors.
const defaultLocalModel = "BAAI/bge-base-en-v1.5"

// LocalConfig holds the settings for constructing a LocalEmbedder.
type LocalConfig struct {
	// Model is the Hugging Face model id (e.g. "BAAI/bge-base-en-v1.5").
	Model string
	// ModelDir is where ONNX models are cached (default: ./models).
	ModelDir string
}

// LocalEmbedder implements rag.Embedder by running an ONNX sentence
// transformer in-process through a pure-Go hugot session.
type LocalEmbedder struct {
	// mu serialises pipeline runs; the Go backend is not reentrant.
	mu sync.Mutex
	// session owns the model runtime and must be destroyed on Close.
	session *hugot.Session
	// pipeline is the feature-extraction pipeline bound to the model.
	pipeline *pipelines.FeatureExtractionPipeline
}

// NewLocalEmbedder prepares the model (downloading it on first use) and
// starts a hugot session.
func NewLocalEmbedder(cfg *LocalConfig) (*LocalEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = defaultLocalModel
	}
	dir := cfg.ModelDir
	if dir == "" {
		dir = "./models"
	}

	modelPath, err := prepareModel(model, dir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("local embedder: failed to create hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "groundrag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("local embedder: failed to create pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("local embedder: failed to create pipeline: %w", err)
	}

	return &LocalEmbedder{session: session, pipeline: pipeline}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	result, err := e.pipeline.RunPipeline(texts)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("local embedder: run pipeline: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("local embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// Close releases the hugot session.
func (e *LocalEmbedder) Close() error {
	return e.session.Destroy()
}

// prepareModel downloads model into dir unless it is already cached and
// returns the local model path.
func prepareModel(model, dir string) (string, error) {
	modelPath := filepath.Join(dir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("local embedder: failed to create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(model, dir, opts)
	if err != nil {
		return "", fmt.Errorf("local embedder: failed to download %s: %w", model, err)
	}
	return downloaded, nil
}
