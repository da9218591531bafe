// Package tracing wires opt-in Langfuse tracing into the eino callback
// system, so every chat model call made for answer generation and
// groundedness judging shows up as a trace.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is the Langfuse API used when Host is empty.
const defaultHost = "http://localhost:3000"

// Config holds Langfuse credentials and trace labels.
type Config struct {
	// Host is the Langfuse API host (default: http://localhost:3000).
	Host string
	// PublicKey and SecretKey authenticate against Langfuse. Tracing is
	// disabled unless both are set.
	PublicKey string
	SecretKey string
	// Name labels every trace (e.g. "groundrag").
	Name string
	// Release tags traces with the binary version.
	Release string
}

// Enabled reports whether both Langfuse keys are present.
func (c *Config) Enabled() bool {
	return c != nil && c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler if cfg is enabled. Returns
// a flush function that must be called before process exit to ensure all
// traces are sent. If Langfuse is not configured, the handler and flush
// function are nil and ok is false.
func Setup(cfg *Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      cfg.Name,
		Release:   cfg.Release,
	})
	return handler, flush, true
}
