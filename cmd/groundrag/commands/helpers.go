package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/groundrag/internal/config"
	"github.com/54b3r/groundrag/internal/embedder"
	"github.com/54b3r/groundrag/internal/engine"
	"github.com/54b3r/groundrag/internal/provider"
	"github.com/54b3r/groundrag/internal/quality"
	"github.com/54b3r/groundrag/internal/rag"
	"github.com/54b3r/groundrag/internal/rerank"
	"github.com/54b3r/groundrag/internal/store"
	"github.com/54b3r/groundrag/internal/tracing"
)

// historyDisabled is the GROUNDRAG_HISTORY_DB value that turns the query
// log off.
const historyDisabled = "disabled"

// stack is the set of collaborators a query-answering command needs.
type stack struct {
	index     *rag.QdrantIndex
	generator provider.Generator
	engine    *engine.Engine
}

// Close releases the Qdrant connection.
func (s *stack) Close() {
	if s.index != nil {
		_ = s.index.Close()
	}
}

// buildEmbedder validates the embedding settings and constructs the embedder.
func buildEmbedder(s *config.Settings, log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(&s.Embedding, s.EmbeddingInherited, log); err != nil {
		return nil, err
	}
	emb, err := embedder.New(&s.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", s.Embedding.Provider),
		slog.Bool("inherited", s.EmbeddingInherited),
	)
	return emb, nil
}

// openIndex connects to Qdrant. The gRPC connection is lazy, so an
// unreachable server surfaces on first use rather than here.
func openIndex(s *config.Settings, log *slog.Logger) (*rag.QdrantIndex, error) {
	index, err := rag.NewQdrantIndex(&s.Qdrant)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", s.Qdrant.Host, s.Qdrant.Port, err)
	}
	log.Info("qdrant client ready",
		slog.String("host", s.Qdrant.Host),
		slog.Int("port", s.Qdrant.Port),
		slog.Bool("tls", s.Qdrant.UseTLS),
		slog.String("collection", s.Collection),
	)
	return index, nil
}

// buildStack wires embedder, index, retriever, reranker, generator and
// judge into an engine. The caller must Close the returned stack.
func buildStack(ctx context.Context, s *config.Settings, log *slog.Logger) (*stack, error) {
	emb, err := buildEmbedder(s, log)
	if err != nil {
		return nil, err
	}

	index, err := openIndex(s, log)
	if err != nil {
		return nil, err
	}
	st := &stack{index: index}

	retriever, err := rag.NewRetriever(emb, index, s.Collection, 0)
	if err != nil {
		st.Close()
		return nil, err
	}

	gen, err := provider.New(ctx, &s.Provider, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	st.generator = gen
	if s.Provider.Backend == provider.BackendEcho {
		log.Warn("no model provider configured, answers echo the prompt (set MODEL_PROVIDER)")
	} else {
		log.Info("provider initialised",
			slog.String("provider", string(s.Provider.Backend)),
			slog.String("model", s.Provider.ModelName()),
		)
	}

	reranker := rerank.New(&s.Reranker)
	if _, ok := reranker.(rerank.Unavailable); ok {
		log.Info("reranker disabled", slog.String("reason", "RERANKER_ENDPOINT not set"))
	}

	eng, err := engine.New(retriever, reranker, gen, quality.NewJudge(gen), &s.Engine)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.engine = eng
	return st, nil
}

// openQueryLog opens the SQLite query log unless it is disabled. Failures
// are logged and disable the log rather than aborting the command.
func openQueryLog(s *config.Settings, log *slog.Logger) (store.QueryLog, func()) {
	noop := func() {}
	path := s.HistoryDB
	if path == historyDisabled {
		log.Info("history: disabled via GROUNDRAG_HISTORY_DB=disabled")
		return nil, noop
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
	}
	qs, err := store.Open(path)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", path))
	return qs, func() { _ = qs.Close() }
}

// setupTracing registers the Langfuse handler globally when configured and
// returns the flush function to defer.
func setupTracing(s *config.Settings, log *slog.Logger) func() {
	handler, flush, ok := tracing.Setup(&s.Tracing)
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}
