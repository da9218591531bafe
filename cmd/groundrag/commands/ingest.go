package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundrag/internal/ingestion"
	"github.com/54b3r/groundrag/internal/logging"
)

// NewIngestCmd constructs the `groundrag ingest` command, which chunks,
// embeds and upserts local documents into Qdrant.
func NewIngestCmd() *cobra.Command {
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest text and markdown files into the vector store",
		Long: `Chunk, embed, and index local documents into Qdrant.

Each path may be a file or a directory. Directories are walked recursively
and only .txt and .md files are picked up; files named explicitly are always
read. Paths that do not exist are skipped.

Chunks are written to the named "content" vector. If the base collection
already uses a different vector layout, a sibling collection named
"<collection>__content" is created instead and queries use it automatically.

Relevant environment variables:
  QDRANT_URL / QDRANT_HOST / QDRANT_PORT   Qdrant gRPC endpoint (default: localhost:6334)
  QDRANT_COLLECTION                        Base collection (default: agentic_rag_poc)
  QDRANT_API_KEY                           Optional API key for authenticated clusters
  EMBEDDING_PROVIDER                       ollama, openai, azure, or local
  EMBEDDING_BATCH_SIZE                     Chunks per embedding call (default: 32)
  CHUNK_SIZE / CHUNK_OVERLAP               Defaults for the flags below

Examples:
  groundrag ingest ./docs
  groundrag ingest --chunk-size 800 --chunk-overlap 100 handbook.md faq.txt
  EMBEDDING_PROVIDER=local groundrag ingest ./notes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := settings
			log := logging.FromContext(ctx)

			size := s.ChunkSize
			if cmd.Flags().Changed("chunk-size") {
				size = chunkSize
			}
			overlap := s.ChunkOverlap
			if cmd.Flags().Changed("chunk-overlap") {
				overlap = chunkOverlap
			}

			emb, err := buildEmbedder(s, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			index, err := openIndex(s, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = index.Close() }()

			pipeline, err := ingestion.NewPipeline(emb, index, &ingestion.Config{
				Collection: s.Collection,
				BatchSize:  s.EmbeddingBatchSize,
				Progress:   func(msg string) { log.Info(msg) },
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.Int("paths", len(args)),
				slog.Int("chunk_size", size),
				slog.Int("chunk_overlap", overlap),
			)

			n, err := pipeline.Ingest(ctx, args, size, overlap)
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("chunks", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks into %q\n", n, s.Collection)
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in bytes (default: CHUNK_SIZE or 1000)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Overlap between consecutive chunks in bytes (default: CHUNK_OVERLAP or 150)")

	return cmd
}
