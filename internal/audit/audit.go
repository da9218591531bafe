// Package audit records which command ran and with what effective settings.
// Credentials are reduced to "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// auditedEnv is logged on every command start, in this order.
var auditedEnv = []string{
	"APP_ENV",
	"MODEL_PROVIDER", "LLM_PROVIDER",
	"OLLAMA_HOST", "OLLAMA_MODEL",
	"OPENAI_API_KEY", "OPENAI_MODEL",
	"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT",
	"ARK_API_KEY", "ARK_MODEL",
	"GOOGLE_API_KEY", "GEMINI_API_KEY", "GEMINI_MODEL",
	"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
	"QDRANT_URL", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "QDRANT_API_KEY",
	"RERANKER_ENDPOINT", "RERANKER_API_KEY",
	"SELF_CHECK_MIN_GROUNDEDNESS", "SELF_CHECK_RETRY",
	"GROUNDRAG_API_KEY", "API_KEY",
	"GROUNDRAG_HISTORY_DB",
	"LOG_LEVEL", "LOG_FORMAT",
	"LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY",
}

// LogCommandStart logs one INFO entry for command. Call it after the YAML and
// .env layers are applied so the entry shows what the command runs with.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedEnv)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, key := range auditedEnv {
		attrs = append(attrs, slog.String(key, SanitiseKey(key, os.Getenv(key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns a value that is safe to log for the variable key.
func SanitiseKey(key, value string) string {
	switch {
	case isSecret(key):
		return presence(value)
	case value == "":
		return "unset"
	default:
		return value
	}
}

// isSecret reports whether key names a credential.
func isSecret(key string) bool {
	return key == "API_KEY" ||
		strings.HasSuffix(key, "_API_KEY") ||
		strings.HasSuffix(key, "_SECRET_KEY") ||
		strings.HasSuffix(key, "_PUBLIC_KEY")
}

func presence(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

// sanitiseConfigPath shortens paths under the home directory to "~/...".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") && !filepath.IsAbs(rel) {
		return "~/" + filepath.ToSlash(rel)
	}
	return p
}
