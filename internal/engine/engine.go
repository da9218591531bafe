// Package engine runs one question through the grounded answering pipeline:
// retrieve, optionally rerank, generate, self-check groundedness, and retry
// once with a wider retrieval window when the answer looks unsupported.
//
// An Engine holds no per-query state and is safe for concurrent use provided
// its collaborators are.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/54b3r/groundrag/internal/budget"
	"github.com/54b3r/groundrag/internal/logging"
	"github.com/54b3r/groundrag/internal/provider"
	"github.com/54b3r/groundrag/internal/rag"
	"github.com/54b3r/groundrag/internal/rerank"
)

const (
	// MaxTopK is the largest number of citations a caller may request.
	MaxTopK = 20

	// DefaultSystemPrompt is the system message used for answer generation.
	DefaultSystemPrompt = "You are a helpful assistant. Answer based only on the provided context. Cite sources."

	// DefaultUserPromptTemplate is rendered with {context_blocks} and {query}.
	DefaultUserPromptTemplate = "Context:\n{context_blocks}\n\nQuestion: {query}\nAnswer:"
)

// Stage names used as Timings keys. The retry pass appends RetrySuffix.
const (
	StageRetrieve  = "retrieve"
	StageRerank    = "rerank"
	StageGenerate  = "generate"
	StageSelfCheck = "self_check"
	RetrySuffix    = "_retry"
)

// Judge scores how well answer is supported by contexts, in [0,1].
type Judge interface {
	Score(ctx context.Context, answer string, contexts []string) (float64, error)
}

// Config holds the engine's tuning. Zero values take the defaults noted on
// each field, except RetryEnabled which is off when false.
type Config struct {
	// SystemPrompt is sent with every generation (default: DefaultSystemPrompt).
	SystemPrompt string
	// UserPromptTemplate carries the {context_blocks} and {query}
	// placeholders (default: DefaultUserPromptTemplate).
	UserPromptTemplate string
	// MinGroundedness is the retry threshold (SELF_CHECK_MIN_GROUNDEDNESS).
	MinGroundedness float64
	// RetryEnabled turns the groundedness-driven retry on (SELF_CHECK_RETRY).
	RetryEnabled bool
	// RetryTopK is the widened retrieval window of the retry pass (default: 20).
	RetryTopK int
	// MinCandidates is the minimum initial retrieval size (default: 10).
	MinCandidates int
}

// RetryOutcome reports what the groundedness retry did.
type RetryOutcome struct {
	// Attempted is true when the first answer scored below the threshold.
	Attempted bool `json:"attempted"`
	// Adopted is true when the retry answer replaced the first one. Because
	// ties favor the retry, Adopted can be true with unchanged groundedness.
	Adopted bool `json:"adopted"`
}

// QueryResult is the outcome of one Run.
type QueryResult struct {
	// Answer is the accepted answer text; empty when nothing was retrieved.
	Answer string `json:"answer"`
	// Citations are exactly the passages the accepted answer was generated from.
	Citations []rag.RetrievedPassage `json:"citations"`
	// Timings maps stage name to elapsed milliseconds.
	Timings map[string]float64 `json:"timings_ms"`
	// Groundedness is the accepted answer's score, nil when unavailable.
	Groundedness *float64 `json:"groundedness"`
	// Retry reports whether a retry ran and whether it won.
	Retry RetryOutcome `json:"retry"`
	// Tokens estimates the accepted generation's token usage.
	Tokens budget.Usage `json:"tokens"`
}

// Engine is the query orchestrator.
type Engine struct {
	retriever rag.Retriever
	reranker  rerank.Reranker
	generator provider.Generator
	judge     Judge
	cfg       Config
}

// New validates the collaborators and returns an Engine. reranker may be nil,
// in which case rerank requests degrade to index order.
func New(retriever rag.Retriever, reranker rerank.Reranker, generator provider.Generator, judge Judge, cfg *Config) (*Engine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("engine: retriever must not be nil: %w", rag.ErrConfigurationInvalid)
	}
	if generator == nil {
		return nil, fmt.Errorf("engine: generator must not be nil: %w", rag.ErrConfigurationInvalid)
	}
	if judge == nil {
		return nil, fmt.Errorf("engine: judge must not be nil: %w", rag.ErrConfigurationInvalid)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.UserPromptTemplate == "" {
		c.UserPromptTemplate = DefaultUserPromptTemplate
	}
	if c.RetryTopK <= 0 {
		c.RetryTopK = MaxTopK
	}
	if c.MinCandidates <= 0 {
		c.MinCandidates = 10
	}
	if c.MinGroundedness < 0 || c.MinGroundedness > 1 {
		return nil, fmt.Errorf("engine: min groundedness %v outside [0,1]: %w", c.MinGroundedness, rag.ErrConfigurationInvalid)
	}
	if reranker == nil {
		reranker = rerank.Unavailable{}
	}
	return &Engine{
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		judge:     judge,
		cfg:       c,
	}, nil
}

// attempt is one retrieve → generate → self-check pass.
type attempt struct {
	answer       string
	passages     []rag.RetrievedPassage
	groundedness *float64
	tokens       budget.Usage
}

// Run answers query with up to topK citations. Only failures of the initial
// retrieval (rag.ErrIndexUnavailable) or generation
// (rag.ErrGeneratorUnavailable) are returned; reranking, self-check and
// retry problems degrade the result instead. topK outside [1, MaxTopK] is
// rag.ErrConfigurationInvalid.
func (e *Engine) Run(ctx context.Context, query string, topK int, rerank bool) (*QueryResult, error) {
	if topK < 1 || topK > MaxTopK {
		return nil, fmt.Errorf("engine: top_k %d outside [1,%d]: %w", topK, MaxTopK, rag.ErrConfigurationInvalid)
	}
	log := logging.FromContext(ctx)

	res := &QueryResult{
		Citations: []rag.RetrievedPassage{},
		Timings:   map[string]float64{},
	}

	// Over-fetch so reranking and truncation have a wider pool than the
	// caller will see.
	first, err := e.attempt(ctx, query, max(topK, e.cfg.MinCandidates), topK, rerank, "", res.Timings)
	if err != nil {
		return nil, err
	}
	if len(first.passages) == 0 {
		log.WarnContext(ctx, "engine: no passages retrieved", slog.Int("top_k", topK))
		return res, nil
	}
	accepted := first

	if g := first.groundedness; g != nil && e.cfg.RetryEnabled && *g < e.cfg.MinGroundedness {
		res.Retry.Attempted = true
		log.InfoContext(ctx, "engine: groundedness below threshold, retrying with wider retrieval",
			slog.Float64("groundedness", *g),
			slog.Float64("threshold", e.cfg.MinGroundedness),
			slog.Int("retry_top_k", e.cfg.RetryTopK),
		)

		second, err := e.attempt(ctx, query, e.cfg.RetryTopK, topK, rerank, RetrySuffix, res.Timings)
		switch {
		case err != nil:
			log.WarnContext(ctx, "engine: retry failed, keeping original answer", slog.String("error", err.Error()))
		case len(second.passages) == 0:
			log.WarnContext(ctx, "engine: retry retrieved nothing, keeping original answer")
		case second.groundedness == nil:
			log.WarnContext(ctx, "engine: retry groundedness unavailable, keeping original answer")
		case *second.groundedness >= *g:
			// Ties go to the retry because it drew on a wider candidate
			// pool. Callers see this through Retry.Adopted.
			accepted = second
			res.Retry.Adopted = true
			log.InfoContext(ctx, "engine: adopting retry answer",
				slog.Float64("groundedness", *g),
				slog.Float64("retry_groundedness", *second.groundedness),
			)
		default:
			log.InfoContext(ctx, "engine: retry did not improve groundedness",
				slog.Float64("groundedness", *g),
				slog.Float64("retry_groundedness", *second.groundedness),
			)
		}
	}

	res.Answer = accepted.answer
	res.Citations = accepted.passages
	res.Groundedness = accepted.groundedness
	res.Tokens = accepted.tokens
	return res, nil
}

// attempt runs one pass, recording stage timings under name+suffix. A nil
// error with no passages means the index had nothing for query.
func (e *Engine) attempt(ctx context.Context, query string, fetchK, topK int, rerank bool, suffix string, timings map[string]float64) (*attempt, error) {
	log := logging.FromContext(ctx)

	start := time.Now()
	passages, err := e.retriever.Retrieve(ctx, query, fetchK)
	if err != nil {
		return nil, fmt.Errorf("engine: retrieve: %w", rag.AsIndexFailure(err))
	}
	timings[StageRetrieve+suffix] = elapsedMS(start)

	if len(passages) == 0 {
		return &attempt{}, nil
	}

	if rerank {
		start = time.Now()
		// Rerank the whole candidate pool, then truncate below.
		reranked, err := e.reranker.Rerank(ctx, query, passages, len(passages))
		if err != nil {
			log.WarnContext(ctx, "engine: rerank skipped", slog.String("error", err.Error()))
		} else {
			passages = reranked
			timings[StageRerank+suffix] = elapsedMS(start)
		}
	}
	passages = passages[:min(topK, len(passages))]

	userPrompt := RenderPrompt(e.cfg.UserPromptTemplate, passages, query)
	start = time.Now()
	answer, err := e.generator.Generate(ctx, e.cfg.SystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("engine: generate: %w", rag.AsGeneratorFailure(err))
	}
	timings[StageGenerate+suffix] = elapsedMS(start)

	a := &attempt{
		answer:   answer,
		passages: passages,
		tokens:   budget.EstimateUsage(e.cfg.SystemPrompt, userPrompt, answer),
	}

	contexts := make([]string, len(passages))
	for i, p := range passages {
		contexts[i] = p.Text
	}
	start = time.Now()
	score, err := e.judge.Score(ctx, answer, contexts)
	if err != nil {
		log.WarnContext(ctx, "engine: groundedness unavailable", slog.String("error", err.Error()))
		return a, nil
	}
	timings[StageSelfCheck+suffix] = elapsedMS(start)
	score = clampScore(score)
	a.groundedness = &score

	return a, nil
}

// clampScore maps a judge score into [0, 1]. NaN becomes 0; min and max
// would otherwise propagate it.
func clampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return min(max(s, 0), 1)
}

// RenderPrompt formats passages as "[source: <id>]\n<text>" blocks separated
// by blank lines and substitutes them and query into template. Only the
// {context_blocks} and {query} placeholders are replaced; other braces are
// left as written.
func RenderPrompt(template string, passages []rag.RetrievedPassage, query string) string {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = "[source: " + p.SourceID + "]\n" + p.Text
	}
	return strings.NewReplacer(
		"{context_blocks}", strings.Join(blocks, "\n\n"),
		"{query}", query,
	).Replace(template)
}

// IsServiceUnavailable reports whether err is one of the failure kinds that
// mean a backing service is down rather than the request being bad.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, rag.ErrIndexUnavailable) || errors.Is(err, rag.ErrGeneratorUnavailable)
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
