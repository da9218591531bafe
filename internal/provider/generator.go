package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/groundrag/internal/budget"
	"github.com/54b3r/groundrag/internal/rag"
)

// GeneratorConfig tunes a ChatGenerator.
type GeneratorConfig struct {
	// Name labels the model in logs and traces (e.g. "openai/gpt-4o").
	Name string
	// Timeout bounds each Generate call (default: 60s).
	Timeout time.Duration
	// Options are passed to every ChatModel.Generate call.
	Options []model.Option
	// Logger receives per-call debug lines and budget warnings.
	Logger *slog.Logger
}

// ChatGenerator adapts an eino ChatModel to the Generator contract.
type ChatGenerator struct {
	cm      model.BaseChatModel
	name    string
	timeout time.Duration
	opts    []model.Option
	log     *slog.Logger
}

// NewChatGenerator wraps cm. A nil cfg uses the defaults.
func NewChatGenerator(cm model.BaseChatModel, cfg *GeneratorConfig) *ChatGenerator {
	if cfg == nil {
		cfg = &GeneratorConfig{}
	}
	g := &ChatGenerator{
		cm:      cm,
		name:    cfg.Name,
		timeout: cfg.Timeout,
		opts:    cfg.Options,
		log:     cfg.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.name == "" {
		g.name = "chat"
	}
	return g
}

// Generate sends the prompt pair and returns the model's answer text.
// Failures and timeouts wrap rag.ErrGeneratorUnavailable.
func (g *ChatGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msgs := budget.Prompt(systemPrompt, userPrompt)
	promptTokens := budget.EstimateMessages(msgs)
	if promptTokens > budget.DefaultMaxContextTokens {
		g.log.WarnContext(ctx, "provider: prompt exceeds context budget",
			slog.String("model", g.name),
			slog.Int("estimated_tokens", promptTokens),
			slog.Int("budget", budget.DefaultMaxContextTokens),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Attach run info so globally registered handlers (Langfuse) see the call.
	ctx = callbacks.EnsureRunInfo(ctx, g.name, components.ComponentOfChatModel)

	start := time.Now()
	resp, err := g.cm.Generate(ctx, msgs, g.opts...)
	if err != nil {
		return "", fmt.Errorf("provider: %s generate: %w", g.name, rag.AsGeneratorFailure(err))
	}
	if resp == nil {
		return "", fmt.Errorf("provider: %s returned no message: %w", g.name, rag.ErrGeneratorUnavailable)
	}

	g.log.DebugContext(ctx, "provider: generated",
		slog.String("model", g.name),
		slog.Int("prompt_tokens_est", promptTokens),
		slog.Int("completion_tokens_est", budget.Estimate(resp.Content)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp.Content, nil
}

// Ping sends a minimal prompt to verify the backend is reachable.
func (g *ChatGenerator) Ping(ctx context.Context) error {
	_, err := g.Generate(ctx, "Reply with the single word: ok", "ping")
	return err
}

// EchoGenerator returns the user prompt as the answer. It is the fallback
// when no LLM provider is configured: the pipeline stays exercisable end to
// end and the "answer" shows exactly what the model would have been sent.
type EchoGenerator struct{}

// Generate returns userPrompt unchanged.
func (EchoGenerator) Generate(_ context.Context, _, userPrompt string) (string, error) {
	return userPrompt, nil
}
