package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/groundrag/internal/provider"
	"github.com/54b3r/groundrag/internal/rag"
)

// clearEnv blanks every variable FromEnv reads so tests start from defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys() {
		t.Setenv(k, "")
	}
	for _, k := range []string{
		"APP_ENV", "LLM_PROVIDER", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "GEMINI_API_KEY",
		"API_KEY", "EMBEDDING_API_VERSION", "EMBEDDING_TIMEOUT", "RERANKER_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if s.Provider.Backend != provider.BackendEcho {
		t.Errorf("backend: got %q, want echo", s.Provider.Backend)
	}
	if s.Collection != DefaultCollection {
		t.Errorf("collection: got %q", s.Collection)
	}
	if s.Engine.MinGroundedness != DefaultMinGroundedness || !s.Engine.RetryEnabled {
		t.Errorf("self-check: got %v retry=%v", s.Engine.MinGroundedness, s.Engine.RetryEnabled)
	}
	if s.Engine.RetryTopK != 20 || s.Engine.MinCandidates != 10 {
		t.Errorf("retry window: got %d/%d", s.Engine.RetryTopK, s.Engine.MinCandidates)
	}
	if s.Provider.Tuning.MaxTokens != 512 || s.Provider.Tuning.Temperature != 0.2 {
		t.Errorf("tuning: got %+v", s.Provider.Tuning)
	}
	if s.Provider.Tuning.Timeout != 60*time.Second || s.Qdrant.Timeout != 30*time.Second {
		t.Errorf("timeouts: model=%v qdrant=%v", s.Provider.Tuning.Timeout, s.Qdrant.Timeout)
	}
	if s.Embedding.Provider != "ollama" || s.EmbeddingInherited {
		t.Errorf("embedding: got %q inherited=%v", s.Embedding.Provider, s.EmbeddingInherited)
	}
	if s.ChunkSize != 1000 || s.ChunkOverlap != 150 || s.EmbeddingBatchSize != 32 {
		t.Errorf("ingest: got %d/%d/%d", s.ChunkSize, s.ChunkOverlap, s.EmbeddingBatchSize)
	}
	if s.Qdrant.Host != "localhost" || s.Qdrant.Port != 6334 || s.Qdrant.UseTLS {
		t.Errorf("qdrant: got %+v", s.Qdrant)
	}
	if s.Reranker.Endpoint != "" {
		t.Errorf("reranker should be disabled by default, got %q", s.Reranker.Endpoint)
	}
	if s.Server.APIKey != "" || s.Server.Port != 8080 {
		t.Errorf("server: got %+v", s.Server)
	}
	if s.Tracing.Enabled() {
		t.Error("tracing should be disabled by default")
	}
}

func TestFromEnv_Aliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LLM_TEMPERATURE", "0.5")
	t.Setenv("API_KEY", "secret-123")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Provider.Backend != provider.BackendGemini {
		t.Errorf("backend: got %q", s.Provider.Backend)
	}
	if s.Provider.Gemini.APIKey != "g-key" {
		t.Errorf("gemini key: got %q", s.Provider.Gemini.APIKey)
	}
	if s.Provider.Tuning.Temperature != 0.5 {
		t.Errorf("temperature: got %v", s.Provider.Tuning.Temperature)
	}
	if s.Server.APIKey != "secret-123" {
		t.Errorf("api key: got %q", s.Server.APIKey)
	}
}

func TestFromEnv_PrimaryBeatsAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("LLM_PROVIDER", "gemini")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Provider.Backend != provider.BackendOpenAI {
		t.Errorf("backend: got %q, want openai", s.Provider.Backend)
	}
}

func TestFromEnv_EmbeddingInheritance(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://res.openai.azure.com")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Embedding.Provider != "azure" || !s.EmbeddingInherited {
		t.Errorf("embedding: got %q inherited=%v", s.Embedding.Provider, s.EmbeddingInherited)
	}
	if s.Embedding.APIKey != "az-key" || s.Embedding.Endpoint != "https://res.openai.azure.com" {
		t.Errorf("embedding credentials not inherited: %+v", s.Embedding)
	}

	t.Setenv("EMBEDDING_PROVIDER", "local")
	s, err = FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Embedding.Provider != "local" || s.EmbeddingInherited {
		t.Errorf("explicit provider: got %q inherited=%v", s.Embedding.Provider, s.EmbeddingInherited)
	}
}

func TestFromEnv_QdrantURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("QDRANT_URL", "https://abc.cloud.qdrant.io:6334")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Qdrant.Host != "abc.cloud.qdrant.io" || s.Qdrant.Port != 6334 || !s.Qdrant.UseTLS {
		t.Errorf("qdrant: got %+v", s.Qdrant)
	}
}

func TestFromEnv_Durations(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_TIMEOUT", "90s")
	t.Setenv("QDRANT_TIMEOUT", "5")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Provider.Tuning.Timeout != 90*time.Second {
		t.Errorf("model timeout: got %v", s.Provider.Tuning.Timeout)
	}
	if s.Qdrant.Timeout != 5*time.Second {
		t.Errorf("qdrant timeout: got %v", s.Qdrant.Timeout)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"threshold above one", map[string]string{"SELF_CHECK_MIN_GROUNDEDNESS": "1.5"}},
		{"threshold not a number", map[string]string{"SELF_CHECK_MIN_GROUNDEDNESS": "high"}},
		{"retry not a bool", map[string]string{"SELF_CHECK_RETRY": "sometimes"}},
		{"overlap not below size", map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}},
		{"template without context", map[string]string{"USER_PROMPT_TEMPLATE": "Question: {query}"}},
		{"bad port", map[string]string{"QDRANT_PORT": "70000"}},
		{"bad qdrant url", map[string]string{"QDRANT_URL": "://nope"}},
		{"unknown embedding backend", map[string]string{"EMBEDDING_PROVIDER": "cohere"}},
		{"bad duration", map[string]string{"MODEL_TIMEOUT": "soon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if !errors.Is(err, rag.ErrConfigurationInvalid) {
				t.Fatalf("want ErrConfigurationInvalid, got %v", err)
			}
		})
	}
}

func TestFromEnv_ReportsEveryMalformedValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "big")
	t.Setenv("RETRY_TOP_K", "many")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"CHUNK_SIZE", "RETRY_TOP_K"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
