package server

import (
	"context"
	"fmt"
)

// pingTarget is satisfied by *provider.ChatGenerator and *rag.QdrantIndex.
type pingTarget interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts a pingTarget to Pinger under a fixed label.
type DependencyPinger struct {
	target pingTarget
	name   string
	probe  string
}

// NewLLMPinger probes the generation backend with a one-word completion.
// Each readiness check therefore spends a few tokens on metered backends.
func NewLLMPinger(target pingTarget, backend string) *DependencyPinger {
	return &DependencyPinger{target: target, name: backend, probe: "generate probe"}
}

// NewQdrantPinger probes Qdrant through its HealthCheck RPC.
func NewQdrantPinger(index pingTarget) *DependencyPinger {
	return &DependencyPinger{target: index, name: "qdrant", probe: "health check"}
}

func (p *DependencyPinger) Name() string { return p.name }

func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("%s %s failed: %w", p.name, p.probe, err)
	}
	return nil
}
