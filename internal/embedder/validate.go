package embedder

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/54b3r/groundrag/internal/rag"
)

// chatModelMarkers are substrings of common chat model names. Embedding with
// one of these usually returns vectors that retrieve nothing useful.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	return slices.ContainsFunc(chatModelMarkers, func(m string) bool {
		return strings.Contains(lower, m)
	})
}

// Validate runs the startup checks for cfg before anything is dialled.
// Hard misconfiguration is returned wrapping rag.ErrConfigurationInvalid;
// suspicious but workable settings are logged as warnings. inherited is true
// when the backend came from MODEL_PROVIDER instead of EMBEDDING_PROVIDER.
func Validate(cfg *Config, inherited bool, log *slog.Logger) error {
	backend := strings.ToLower(cfg.Provider)
	if backend == "" {
		backend = "ollama"
	}
	if !slices.Contains(Backends, backend) {
		return fmt.Errorf("embedder: unknown backend %q, valid values: %s: %w",
			cfg.Provider, strings.Join(Backends, ", "), rag.ErrConfigurationInvalid)
	}
	if err := checkCredentials(backend, cfg); err != nil {
		return err
	}

	if inherited && backend != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER unset, embedding with the chat provider's backend",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly"),
		)
	}
	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use an embedding model such as nomic-embed-text or BAAI/bge-base-en-v1.5"),
		)
	}
	return nil
}

// checkCredentials reports the first setting a remote backend is missing.
func checkCredentials(backend string, cfg *Config) error {
	var missing string
	switch {
	case backend == "openai" && cfg.APIKey == "":
		missing = "OPENAI_API_KEY or EMBEDDING_API_KEY"
	case backend == "azure" && cfg.APIKey == "":
		missing = "AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY"
	case backend == "azure" && cfg.Endpoint == "":
		missing = "AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT"
	default:
		return nil
	}
	return fmt.Errorf("embedder: %s requires %s: %w", backend, missing, rag.ErrConfigurationInvalid)
}
