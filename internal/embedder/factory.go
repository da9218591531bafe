package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/groundrag/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	defaultAzureAPIVersion = "2025-04-01-preview"
	defaultTimeout         = 60 * time.Second
)

// Backends lists the accepted values of Config.Provider.
var Backends = []string{"ollama", "openai", "azure", "local"}

// Config selects and configures an embedding backend. It is filled by the
// config package from EMBEDDING_* variables, with credentials inherited from
// the chat provider when not overridden.
type Config struct {
	// Provider is one of Backends.
	Provider string
	// Model overrides the backend's default model.
	Model string
	// Endpoint is the backend base URL (Ollama host, OpenAI base, Azure resource).
	Endpoint string
	// APIKey authenticates against openai/azure.
	APIKey string
	// Dimensions requests a specific vector length where supported (0 = default).
	Dimensions int
	// AzureAPIVersion is the api-version query parameter for azure.
	AzureAPIVersion string
	// ModelDir caches ONNX models for the local backend.
	ModelDir string
	// Timeout bounds each HTTP embedding call.
	Timeout time.Duration
}

// New constructs a rag.Embedder for cfg.Provider. Missing credentials for a
// remote backend are reported as rag.ErrConfigurationInvalid.
func New(cfg *Config) (rag.Embedder, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	backend := strings.ToLower(cfg.Provider)
	if err := checkCredentials(backend, cfg); err != nil {
		return nil, err
	}

	switch backend {
	case "", "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:    strings.TrimRight(host, "/"),
			Model:   orDefault(cfg.Model, defaultOllamaModel),
			Timeout: timeout,
		}), nil

	case "openai":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(orDefault(cfg.Endpoint, "https://api.openai.com/v1"), "/"),
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Timeout:    timeout,
		}), nil

	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: orDefault(cfg.AzureAPIVersion, defaultAzureAPIVersion),
			Timeout:    timeout,
		}), nil

	case "local":
		local, err := NewLocalEmbedder(&LocalConfig{
			Model:    orDefault(cfg.Model, defaultLocalModel),
			ModelDir: cfg.ModelDir,
		})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", rag.AsIndexFailure(err))
		}
		return local, nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: %s: %w",
			cfg.Provider, strings.Join(Backends, ", "), rag.ErrConfigurationInvalid)
	}
}

// orDefault returns v, or fallback when v is empty.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
