package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/groundrag/internal/rag"
)

// completeConfigs is one fully populated Config per credentialed backend.
func completeConfigs() map[Backend]Config {
	return map[Backend]Config{
		BackendOllama: {Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "llama3"}},
		BackendOpenAI: {Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		BackendAzure: {Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
			APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o", APIVersion: "2024-02-01",
		}},
		BackendArk:    {Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-test", Model: "ep-2024"}},
		BackendGemini: {Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"}},
	}
}

func TestConfigValidate_Complete(t *testing.T) {
	t.Parallel()

	for backend, cfg := range completeConfigs() {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: unexpected error: %v", backend, err)
		}
	}
	if err := (&Config{Backend: BackendEcho}).Validate(); err != nil {
		t.Errorf("echo needs no credentials, got %v", err)
	}
}

// TestConfigValidate_MissingField blanks one required field at a time and
// expects the error to name its env var.
func TestConfigValidate_MissingField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		backend Backend
		blank   func(*Config)
		env     string
	}{
		{BackendOllama, func(c *Config) { c.Ollama.Host = "" }, "OLLAMA_HOST"},
		{BackendOllama, func(c *Config) { c.Ollama.Model = " " }, "OLLAMA_MODEL"},
		{BackendOpenAI, func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{BackendOpenAI, func(c *Config) { c.OpenAI.Model = "" }, "OPENAI_MODEL"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.APIKey = "" }, "AZURE_OPENAI_API_KEY"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.Endpoint = "" }, "AZURE_OPENAI_ENDPOINT"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.Deployment = "" }, "AZURE_OPENAI_DEPLOYMENT"},
		{BackendArk, func(c *Config) { c.Ark.APIKey = "" }, "ARK_API_KEY"},
		{BackendArk, func(c *Config) { c.Ark.Model = "" }, "ARK_MODEL"},
		{BackendGemini, func(c *Config) { c.Gemini.APIKey = "" }, "GOOGLE_API_KEY"},
		{BackendGemini, func(c *Config) { c.Gemini.Model = "" }, "GEMINI_MODEL"},
	}
	for _, tc := range cases {
		t.Run(tc.env, func(t *testing.T) {
			t.Parallel()
			cfg := completeConfigs()[tc.backend]
			tc.blank(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, rag.ErrGeneratorUnavailable) {
				t.Fatalf("want ErrGeneratorUnavailable, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.env) {
				t.Errorf("error %q does not name %s", err, tc.env)
			}
		})
	}
}

func TestConfigValidate_ListsEveryMissingVar(t *testing.T) {
	t.Parallel()

	err := (&Config{Backend: BackendAzure}).Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	want := "AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should list %q", err, want)
	}
}

func TestConfigValidate_UnknownBackend(t *testing.T) {
	t.Parallel()

	err := (&Config{Backend: "bedrock"}).Validate()
	if !errors.Is(err, rag.ErrConfigurationInvalid) {
		t.Errorf("want ErrConfigurationInvalid, got %v", err)
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"o1-preview":   true,
		"o3-mini":      true,
		"o4-mini":      true,
		"O3-Mini":      true,
		"codex-mini":   true,
		"gpt-5-codex":  false, // prefix match only
		"gpt-4o":       false,
		"gpt-4.1":      false,
		"gpt-35-turbo": false,
		"":             false,
	}
	for deployment, want := range cases {
		if got := isAzureReasoningModel(deployment); got != want {
			t.Errorf("isAzureReasoningModel(%q) = %v, want %v", deployment, got, want)
		}
	}
}

func TestConfigModelName(t *testing.T) {
	t.Parallel()

	for backend, cfg := range completeConfigs() {
		if cfg.ModelName() == "" {
			t.Errorf("%s: empty model name", backend)
		}
	}
	azure := completeConfigs()[BackendAzure]
	if got := azure.ModelName(); got != "gpt-4o" {
		t.Errorf("azure reports the deployment, got %q", got)
	}
	if got := (&Config{Backend: BackendEcho}).ModelName(); got != "echo" {
		t.Errorf("echo: got %q", got)
	}
}
