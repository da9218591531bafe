// Package ingestion implements the document ingestion pipeline.
// It walks local text and markdown files, chunks the content, embeds each
// chunk, and upserts the results into the vector index.
// This pipeline is invoked by the `groundrag ingest` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/54b3r/groundrag/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Collection is the base Qdrant collection name.
	Collection string

	// BatchSize is the number of chunks embedded and upserted per request.
	// Defaults to 32 if zero.
	BatchSize int

	// Extensions lists the file suffixes picked up when walking directories.
	// Defaults to .txt and .md.
	Extensions []string

	// Progress receives human-readable progress messages. Optional.
	Progress func(msg string)
}

// Pipeline orchestrates the read → chunk → embed → upsert flow for a set
// of local paths.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// index persists the embedded chunks.
	index rag.VectorIndex

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.VectorIndex, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil: %w", rag.ErrConfigurationInvalid)
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil: %w", rag.ErrConfigurationInvalid)
	}
	if cfg == nil || strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("ingestion: collection must not be empty: %w", rag.ErrConfigurationInvalid)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".txt", ".md"}
	}
	if cfg.Progress == nil {
		cfg.Progress = func(string) {}
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
	}, nil
}

// Ingest reads every file reachable from paths, chunks it, embeds the chunks
// in batches, and writes them into the collection returned by
// EnsureCollection with the named "content" vector. Directories are walked
// recursively and filtered by extension; explicitly named files are always
// read. Paths that do not exist are skipped.
//
// It returns the number of chunks written. No files or no chunks is not an
// error and yields 0.
func (p *Pipeline) Ingest(ctx context.Context, paths []string, chunkSize, chunkOverlap int) (int, error) {
	files, err := p.collect(paths)
	if err != nil {
		return 0, err
	}

	var chunks []TextChunk
	for _, f := range files {
		text, err := readText(f)
		if err != nil {
			return 0, fmt.Errorf("ingestion: read %s: %w", f, err)
		}
		cs, err := Chunk(text, chunkSize, chunkOverlap, f)
		if err != nil {
			return 0, err
		}
		p.cfg.Progress(fmt.Sprintf("chunked %s into %d chunks", f, len(cs)))
		chunks = append(chunks, cs...)
	}

	if len(chunks) == 0 {
		p.cfg.Progress("no files or chunks to ingest")
		return 0, nil
	}

	p.cfg.Progress(fmt.Sprintf("embedding %d chunks", len(chunks)))

	var (
		schema  rag.CollectionSchema
		dim     int
		written int
	)
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		batch := chunks[start:min(start+p.cfg.BatchSize, len(chunks))]

		texts := make([]string, len(batch))
		payloads := make([]rag.Payload, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
			payloads[i] = rag.Payload{SourceID: c.SourceID, ChunkIndex: c.ChunkIndex, Text: c.Text}
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("ingestion: embedding failed: %w", rag.AsIndexFailure(err))
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks: %w",
				len(vectors), len(batch), rag.ErrIndexUnavailable)
		}

		if start == 0 {
			dim = len(vectors[0])
			if dim == 0 {
				return 0, fmt.Errorf("ingestion: embedder returned empty vectors: %w", rag.ErrIndexUnavailable)
			}
			schema, err = p.index.EnsureCollection(ctx, p.cfg.Collection, uint64(dim), rag.Named(rag.ContentVector))
			if err != nil {
				return 0, fmt.Errorf("ingestion: ensure collection: %w", err)
			}
			p.cfg.Progress(fmt.Sprintf("writing to collection %s (%s, dim=%d)", schema.Collection, schema.Vector, dim))
		}
		for i, v := range vectors {
			if len(v) != dim {
				return written, fmt.Errorf("ingestion: chunk %s#%d has dimension %d, want %d: %w",
					batch[i].SourceID, batch[i].ChunkIndex, len(v), dim, rag.ErrIndexUnavailable)
			}
		}

		if err := p.index.Upsert(ctx, schema.Collection, vectors, payloads, schema.Vector); err != nil {
			return written, fmt.Errorf("ingestion: upsert failed: %w", err)
		}
		written += len(batch)
		p.cfg.Progress(fmt.Sprintf("upserted %d/%d chunks", written, len(chunks)))
	}

	return written, nil
}

// collect expands paths into a list of files to read.
func (p *Pipeline) collect(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			p.cfg.Progress(fmt.Sprintf("skipping %s: not found", path))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(f string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && p.wanted(f) {
				files = append(files, f)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("ingestion: walk %s: %w", path, err)
		}
	}
	return files, nil
}

// wanted reports whether f carries one of the configured extensions.
func (p *Pipeline) wanted(f string) bool {
	return slices.Contains(p.cfg.Extensions, strings.ToLower(filepath.Ext(f)))
}

// readText reads a file as UTF-8, dropping invalid byte sequences.
func readText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), ""), nil
}
