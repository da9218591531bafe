// Package config resolves groundrag's settings from, in increasing priority:
// built-in defaults, a YAML file, a .env file, and the process environment.
//
// The YAML file is the first of these that exists:
//  1. the --config flag
//  2. $GROUNDRAG_CONFIG
//  3. ~/.groundrag/config.yaml
//  4. ./groundrag.yaml
//
// File layers only fill variables the environment leaves unset; [FromEnv]
// then reads the environment once into an immutable [Settings].
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file. Every leaf carries the env var it feeds in
// its `env` tag; zero values are treated as absent.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	SelfCheck SelfCheckConfig `yaml:"self_check"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects the chat backend: ollama, openai, azure, ark, gemini
// or echo.
type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"MODEL_PROVIDER"`
	MaxTokens   int     `yaml:"max_tokens" env:"MODEL_MAX_TOKENS"`
	Temperature float32 `yaml:"temperature" env:"MODEL_TEMPERATURE"`
	// Timeout is a Go duration string such as "90s".
	Timeout string `yaml:"timeout" env:"MODEL_TIMEOUT"`

	Ollama struct {
		Host  string `yaml:"host" env:"OLLAMA_HOST"`
		Model string `yaml:"model" env:"OLLAMA_MODEL"`
	} `yaml:"ollama"`
	OpenAI struct {
		APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
		Model   string `yaml:"model" env:"OPENAI_MODEL"`
		BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	} `yaml:"openai"`
	Azure struct {
		APIKey     string `yaml:"api_key" env:"AZURE_OPENAI_API_KEY"`
		Endpoint   string `yaml:"endpoint" env:"AZURE_OPENAI_ENDPOINT"`
		Deployment string `yaml:"deployment" env:"AZURE_OPENAI_DEPLOYMENT"`
		APIVersion string `yaml:"api_version" env:"AZURE_OPENAI_API_VERSION"`
	} `yaml:"azure"`
	Ark struct {
		APIKey  string `yaml:"api_key" env:"ARK_API_KEY"`
		Model   string `yaml:"model" env:"ARK_MODEL"`
		BaseURL string `yaml:"base_url" env:"ARK_BASE_URL"`
	} `yaml:"ark"`
	Gemini struct {
		APIKey string `yaml:"api_key" env:"GOOGLE_API_KEY"`
		Model  string `yaml:"model" env:"GEMINI_MODEL"`
	} `yaml:"gemini"`
}

// EmbeddingConfig selects the embedding backend: ollama, openai, azure or
// local. Unset credentials are inherited from the chat backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	APIKey     string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT"`
	ModelDir   string `yaml:"model_dir" env:"EMBEDDING_MODEL_DIR"`
	BatchSize  int    `yaml:"batch_size" env:"EMBEDDING_BATCH_SIZE"`
}

// QdrantConfig locates the vector index. URL, when set, supplies host, port
// and TLS in one value.
type QdrantConfig struct {
	URL        string `yaml:"url" env:"QDRANT_URL"`
	Host       string `yaml:"host" env:"QDRANT_HOST"`
	Port       int    `yaml:"port" env:"QDRANT_PORT"`
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
	APIKey     string `yaml:"api_key" env:"QDRANT_API_KEY"`
	TLS        bool   `yaml:"tls" env:"QDRANT_TLS"`
	Timeout    string `yaml:"timeout" env:"QDRANT_TIMEOUT"`
}

// RerankerConfig points at a TEI-compatible /rerank server. No endpoint, no
// reranking.
type RerankerConfig struct {
	Endpoint string `yaml:"endpoint" env:"RERANKER_ENDPOINT"`
	Model    string `yaml:"model" env:"RERANKER_MODEL"`
	APIKey   string `yaml:"api_key" env:"RERANKER_API_KEY"`
}

type SelfCheckConfig struct {
	MinGroundedness float64 `yaml:"min_groundedness" env:"SELF_CHECK_MIN_GROUNDEDNESS"`
	// Retry is a pointer so an explicit false survives the zero-means-unset rule.
	Retry     *bool `yaml:"retry" env:"SELF_CHECK_RETRY"`
	RetryTopK int   `yaml:"retry_top_k" env:"RETRY_TOP_K"`
}

// PromptsConfig overrides the generation prompts. The user template must
// contain {context_blocks}; {query} is optional.
type PromptsConfig struct {
	System       string `yaml:"system" env:"SYSTEM_PROMPT"`
	UserTemplate string `yaml:"user_template" env:"USER_PROMPT_TEMPLATE"`
}

type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
}

type ServerConfig struct {
	Host      string  `yaml:"host" env:"SERVER_HOST"`
	Port      int     `yaml:"port" env:"SERVER_PORT"`
	APIKey    string  `yaml:"api_key" env:"GROUNDRAG_API_KEY"`
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT_RPS"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_LIMIT_BURST"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// HistoryConfig locates the SQLite query log; "disabled" turns it off.
type HistoryConfig struct {
	DBPath string `yaml:"db_path" env:"GROUNDRAG_HISTORY_DB"`
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key" env:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `yaml:"secret_key" env:"LANGFUSE_SECRET_KEY"`
	Host      string `yaml:"host" env:"LANGFUSE_HOST"`
}

// Load parses the first YAML file found (see the package doc) and exports
// its non-zero values into the environment, skipping variables that are
// already set. It returns the path used, or "" when there is no file.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for key, val := range envValues(&cfg) {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return "", fmt.Errorf("config: set %s: %w", key, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config", slog.String("path", path), slog.Int("keys_applied", applied))
	return path, nil
}

// LoadDotEnv exports KEY=VALUE pairs from path (".env" when empty) without
// overriding existing variables. A missing file is ignored.
func LoadDotEnv(path string, log *slog.Logger) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("config: no .env file found", slog.String("path", path))
		return nil
	case err != nil:
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	log.Debug("config: loaded .env file", slog.String("path", path))
	return nil
}

// envValues flattens cfg into env var assignments by walking `env` tags.
// Zero values and nil pointers are omitted.
func envValues(cfg *Config) map[string]string {
	out := make(map[string]string)
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		t := v.Type()
		for i := range t.NumField() {
			f := v.Field(i)
			key := t.Field(i).Tag.Get("env")
			if key == "" {
				if f.Kind() == reflect.Struct {
					walk(f)
				}
				continue
			}
			if s := formatValue(f); s != "" {
				out[key] = s
			}
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return out
}

// formatValue renders a config leaf, or "" when it is unset.
func formatValue(v reflect.Value) string {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		// An explicitly set pointer is rendered even when its target is zero.
		v = v.Elem()
		if v.Kind() == reflect.Bool {
			return strconv.FormatBool(v.Bool())
		}
	}
	if v.IsZero() {
		return ""
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	default:
		return ""
	}
}

// resolveConfigPath returns the first candidate file that exists. An explicit
// path that does not exist yields "" rather than falling through.
func resolveConfigPath(explicit string) string {
	candidates := []string{explicit}
	if explicit == "" {
		candidates = []string{os.Getenv("GROUNDRAG_CONFIG")}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".groundrag", "config.yaml"))
		}
		candidates = append(candidates, "groundrag.yaml")
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
