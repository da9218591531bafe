package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/groundrag/internal/embedder"
	"github.com/54b3r/groundrag/internal/engine"
	"github.com/54b3r/groundrag/internal/provider"
	"github.com/54b3r/groundrag/internal/rag"
	"github.com/54b3r/groundrag/internal/rerank"
	"github.com/54b3r/groundrag/internal/tracing"
	"github.com/54b3r/groundrag/internal/version"
)

// Defaults applied by FromEnv when the corresponding variable is unset.
const (
	DefaultCollection      = "agentic_rag_poc"
	DefaultMinGroundedness = 0.7
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 150
	DefaultBatchSize       = 32
	DefaultMaxTokens       = 512
	DefaultTemperature     = 0.2
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8080
	DefaultRateLimit       = 10
	DefaultRateBurst       = 20
)

// ServerSettings holds the HTTP surface configuration.
type ServerSettings struct {
	Host string
	Port int
	// APIKey enables authentication when non-empty.
	APIKey string
	// RateLimit and RateBurst are the per-IP token bucket on /v1/query.
	RateLimit float64
	RateBurst int
}

// Settings is the resolved, immutable configuration of one process. It is
// built once by FromEnv and passed explicitly to constructors.
type Settings struct {
	// AppEnv labels the deployment (APP_ENV, default "dev").
	AppEnv string

	Provider provider.Config

	Embedding embedder.Config
	// EmbeddingInherited is true when the embedding backend was taken from
	// MODEL_PROVIDER because EMBEDDING_PROVIDER was unset.
	EmbeddingInherited bool
	// EmbeddingBatchSize is the number of chunks embedded per call.
	EmbeddingBatchSize int

	Qdrant rag.QdrantConfig
	// Collection is the base collection name.
	Collection string

	Reranker rerank.Config

	Engine engine.Config

	ChunkSize    int
	ChunkOverlap int

	Server ServerSettings

	// HistoryDB is the query log path; "" selects the default location and
	// "disabled" turns the log off.
	HistoryDB string

	Tracing tracing.Config

	LogLevel  string
	LogFormat string
}

// envReader reads typed values from the environment and accumulates parse
// errors so FromEnv can report every malformed variable at once.
type envReader struct {
	errs []error
}

// str returns the first non-empty value among keys, or def.
func (r *envReader) str(def string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}

func (r *envReader) integer(def int, keys ...string) int {
	v := r.str("", keys...)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not an integer", keys[0], v))
		return def
	}
	return n
}

func (r *envReader) number(def float64, keys ...string) float64 {
	v := r.str("", keys...)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a number", keys[0], v))
		return def
	}
	return f
}

func (r *envReader) flag(def bool, keys ...string) bool {
	v := r.str("", keys...)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a boolean", keys[0], v))
		return def
	}
	return b
}

func (r *envReader) duration(def time.Duration, keys ...string) time.Duration {
	v := r.str("", keys...)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are seconds.
		if secs, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			return time.Duration(secs * float64(time.Second))
		}
		r.errs = append(r.errs, fmt.Errorf("%s=%q is not a duration", keys[0], v))
		return def
	}
	return d
}

// FromEnv builds Settings from the process environment, after Load and
// LoadDotEnv have applied their layers. Malformed values and failed
// validation are reported as rag.ErrConfigurationInvalid.
func FromEnv() (*Settings, error) {
	r := &envReader{}

	s := &Settings{
		AppEnv:    r.str("dev", "APP_ENV"),
		LogLevel:  r.str("info", "LOG_LEVEL"),
		LogFormat: r.str("json", "LOG_FORMAT"),
	}

	// Provider. LLM_* and GEMINI_API_KEY are accepted as aliases.
	s.Provider = provider.Config{
		Backend: provider.Backend(strings.ToLower(r.str(string(provider.BackendEcho), "MODEL_PROVIDER", "LLM_PROVIDER"))),
		Ollama: provider.ProviderOllama{
			Host:  r.str("http://localhost:11434", "OLLAMA_HOST"),
			Model: r.str("", "OLLAMA_MODEL"),
		},
		OpenAI: provider.ProviderOpenAI{
			APIKey:  r.str("", "OPENAI_API_KEY"),
			Model:   r.str("gpt-4o-mini", "OPENAI_MODEL"),
			BaseURL: r.str("", "OPENAI_BASE_URL"),
		},
		AzureOpenAI: provider.ProviderAzureOpenAI{
			APIKey:     r.str("", "AZURE_OPENAI_API_KEY"),
			Endpoint:   r.str("", "AZURE_OPENAI_ENDPOINT"),
			Deployment: r.str("", "AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: r.str("", "AZURE_OPENAI_API_VERSION"),
		},
		Ark: provider.ProviderArk{
			APIKey:  r.str("", "ARK_API_KEY"),
			Model:   r.str("", "ARK_MODEL"),
			BaseURL: r.str("", "ARK_BASE_URL"),
		},
		Gemini: provider.ProviderGemini{
			APIKey: r.str("", "GOOGLE_API_KEY", "GEMINI_API_KEY"),
			Model:  r.str("gemini-1.5-flash", "GEMINI_MODEL"),
		},
		Tuning: provider.SharedTuning{
			MaxTokens:   r.integer(DefaultMaxTokens, "MODEL_MAX_TOKENS", "LLM_MAX_TOKENS"),
			Temperature: float32(r.number(DefaultTemperature, "MODEL_TEMPERATURE", "LLM_TEMPERATURE")),
			Timeout:     r.duration(60*time.Second, "MODEL_TIMEOUT"),
		},
	}

	// Embedding backend: explicit, else inherited from the chat provider when
	// that provider can also embed, else ollama.
	embBackend := r.str("", "EMBEDDING_PROVIDER")
	if embBackend == "" {
		if slices.Contains(embedder.Backends, string(s.Provider.Backend)) {
			embBackend = string(s.Provider.Backend)
			s.EmbeddingInherited = true
		} else {
			embBackend = "ollama"
		}
	}
	embBackend = strings.ToLower(embBackend)
	s.Embedding = embedder.Config{
		Provider:        embBackend,
		Model:           r.str("", "EMBEDDING_MODEL"),
		Dimensions:      r.integer(0, "EMBEDDING_DIMENSIONS"),
		AzureAPIVersion: r.str("", "EMBEDDING_API_VERSION", "AZURE_OPENAI_API_VERSION"),
		ModelDir:        r.str("", "EMBEDDING_MODEL_DIR"),
		Timeout:         r.duration(60*time.Second, "EMBEDDING_TIMEOUT"),
	}
	switch embBackend {
	case "ollama":
		s.Embedding.Endpoint = r.str(s.Provider.Ollama.Host, "EMBEDDING_ENDPOINT")
	case "openai":
		s.Embedding.APIKey = r.str("", "EMBEDDING_API_KEY", "OPENAI_API_KEY")
		s.Embedding.Endpoint = r.str("", "EMBEDDING_ENDPOINT", "OPENAI_BASE_URL")
	case "azure":
		s.Embedding.APIKey = r.str("", "EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		s.Embedding.Endpoint = r.str("", "EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	default:
		s.Embedding.APIKey = r.str("", "EMBEDDING_API_KEY")
		s.Embedding.Endpoint = r.str("", "EMBEDDING_ENDPOINT")
	}
	s.EmbeddingBatchSize = r.integer(DefaultBatchSize, "EMBEDDING_BATCH_SIZE")

	// Qdrant. QDRANT_URL, when set, supplies host, port and TLS.
	s.Qdrant = rag.QdrantConfig{
		Host:    r.str("localhost", "QDRANT_HOST"),
		Port:    r.integer(6334, "QDRANT_PORT"),
		APIKey:  r.str("", "QDRANT_API_KEY"),
		UseTLS:  r.flag(false, "QDRANT_TLS"),
		Timeout: r.duration(30*time.Second, "QDRANT_TIMEOUT"),
	}
	if raw := r.str("", "QDRANT_URL"); raw != "" {
		if err := applyQdrantURL(&s.Qdrant, raw); err != nil {
			r.errs = append(r.errs, err)
		}
	}
	s.Collection = r.str(DefaultCollection, "QDRANT_COLLECTION")

	s.Reranker = rerank.Config{
		Endpoint: r.str("", "RERANKER_ENDPOINT"),
		Model:    r.str(rerank.DefaultModel, "RERANKER_MODEL"),
		APIKey:   r.str("", "RERANKER_API_KEY"),
		Timeout:  r.duration(30*time.Second, "RERANKER_TIMEOUT"),
	}

	s.Engine = engine.Config{
		SystemPrompt:       r.str(engine.DefaultSystemPrompt, "SYSTEM_PROMPT"),
		UserPromptTemplate: r.str(engine.DefaultUserPromptTemplate, "USER_PROMPT_TEMPLATE"),
		MinGroundedness:    r.number(DefaultMinGroundedness, "SELF_CHECK_MIN_GROUNDEDNESS"),
		RetryEnabled:       r.flag(true, "SELF_CHECK_RETRY"),
		RetryTopK:          r.integer(engine.MaxTopK, "RETRY_TOP_K"),
		MinCandidates:      10,
	}

	s.ChunkSize = r.integer(DefaultChunkSize, "CHUNK_SIZE")
	s.ChunkOverlap = r.integer(DefaultChunkOverlap, "CHUNK_OVERLAP")

	s.Server = ServerSettings{
		Host:      r.str(DefaultServerHost, "SERVER_HOST"),
		Port:      r.integer(DefaultServerPort, "SERVER_PORT"),
		APIKey:    r.str("", "GROUNDRAG_API_KEY", "API_KEY"),
		RateLimit: r.number(DefaultRateLimit, "RATE_LIMIT_RPS"),
		RateBurst: r.integer(DefaultRateBurst, "RATE_LIMIT_BURST"),
	}

	s.HistoryDB = r.str("", "GROUNDRAG_HISTORY_DB")

	s.Tracing = tracing.Config{
		Host:      r.str("", "LANGFUSE_HOST"),
		PublicKey: r.str("", "LANGFUSE_PUBLIC_KEY"),
		SecretKey: r.str("", "LANGFUSE_SECRET_KEY"),
		Name:      "groundrag",
		Release:   version.Version,
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w: %w", rag.ErrConfigurationInvalid, errors.Join(r.errs...))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges that no constructor can recover from.
// Provider credentials are checked by provider.Config.Validate when the
// generator is built, so commands that never generate do not require them.
func (s *Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	g := s.Engine.MinGroundedness
	check(g >= 0 && g <= 1, "SELF_CHECK_MIN_GROUNDEDNESS=%v must be within [0,1]", g)
	check(s.Engine.RetryTopK >= 1, "RETRY_TOP_K=%d must be positive", s.Engine.RetryTopK)
	check(strings.Contains(s.Engine.UserPromptTemplate, "{context_blocks}"),
		"USER_PROMPT_TEMPLATE must contain the {context_blocks} placeholder")
	check(s.ChunkSize > 0, "CHUNK_SIZE=%d must be positive", s.ChunkSize)
	check(s.ChunkOverlap >= 0 && s.ChunkOverlap < s.ChunkSize,
		"CHUNK_OVERLAP=%d must be within [0,CHUNK_SIZE)", s.ChunkOverlap)
	check(s.EmbeddingBatchSize > 0, "EMBEDDING_BATCH_SIZE=%d must be positive", s.EmbeddingBatchSize)
	check(strings.TrimSpace(s.Collection) != "", "QDRANT_COLLECTION must not be empty")
	check(s.Qdrant.Port > 0 && s.Qdrant.Port < 65536, "QDRANT_PORT=%d is not a valid port", s.Qdrant.Port)
	check(s.Server.Port > 0 && s.Server.Port < 65536, "SERVER_PORT=%d is not a valid port", s.Server.Port)
	check(s.Server.RateLimit > 0, "RATE_LIMIT_RPS=%v must be positive", s.Server.RateLimit)
	check(s.Server.RateBurst > 0, "RATE_LIMIT_BURST=%d must be positive", s.Server.RateBurst)
	check(s.Provider.Tuning.MaxTokens > 0, "MODEL_MAX_TOKENS=%d must be positive", s.Provider.Tuning.MaxTokens)
	check(slices.Contains(embedder.Backends, s.Embedding.Provider),
		"EMBEDDING_PROVIDER=%q must be one of %s", s.Embedding.Provider, strings.Join(embedder.Backends, ", "))

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", rag.ErrConfigurationInvalid, errors.Join(errs...))
	}
	return nil
}

// applyQdrantURL copies host, port and scheme-derived TLS from raw into cfg.
// A URL without a port keeps cfg.Port.
func applyQdrantURL(cfg *rag.QdrantConfig, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("QDRANT_URL=%q is not a valid URL", raw)
	}
	cfg.Host = u.Hostname()
	cfg.UseTLS = u.Scheme == "https"
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("QDRANT_URL=%q has an invalid port", raw)
		}
		cfg.Port = port
	}
	return nil
}
