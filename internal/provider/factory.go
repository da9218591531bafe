package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/groundrag/internal/rag"
)

// defaultTimeout bounds a generation call when Tuning.Timeout is unset.
const defaultTimeout = 60 * time.Second

// NewChatModel constructs the eino ChatModel for cfg.Backend. It validates
// the config first so callers get a clear error at startup rather than on
// the first request.
func NewChatModel(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Tuning.Timeout <= 0 {
		cfg.Tuning.Timeout = defaultTimeout
	}

	var (
		cm  model.BaseChatModel
		err error
	)
	switch cfg.Backend {
	case BackendOllama:
		cm, err = newOllama(ctx, cfg)
	case BackendOpenAI:
		cm, err = newOpenAI(ctx, cfg)
	case BackendAzure:
		cm, err = newAzure(ctx, cfg)
	case BackendArk:
		cm, err = newArk(ctx, cfg)
	case BackendGemini:
		cm, err = newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: backend %q has no chat model: %w", cfg.Backend, rag.ErrConfigurationInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: init %s: %w", cfg.Backend, rag.AsGeneratorFailure(err))
	}
	return cm, nil
}

// New constructs the Generator for cfg.Backend: an EchoGenerator for the echo
// backend, otherwise a ChatGenerator over the backend's ChatModel.
func New(ctx context.Context, cfg *Config, log *slog.Logger) (Generator, error) {
	if cfg.Backend == BackendEcho {
		return EchoGenerator{}, nil
	}

	cm, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var opts []model.Option
	if cfg.Backend == BackendOllama {
		// The Ollama config has no tuning fields; apply them per call.
		opts = append(opts,
			model.WithTemperature(cfg.Tuning.Temperature),
			model.WithMaxTokens(cfg.Tuning.MaxTokens),
		)
	}

	return NewChatGenerator(cm, &GeneratorConfig{
		Name:    fmt.Sprintf("%s/%s", cfg.Backend, cfg.ModelName()),
		Timeout: cfg.Tuning.Timeout,
		Options: opts,
		Logger:  log,
	}), nil
}
