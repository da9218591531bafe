package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/groundrag/internal/logging"
)

const probeTimeout = 5 * time.Second

// Pinger is a dependency the readiness endpoint can probe. Ping must be safe
// for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in the readiness body, e.g. "qdrant".
	Name() string
}

type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady serves GET /api/ready. All pingers run in parallel, each
// bounded by probeTimeout; any failure turns the response into a 503.
// Checks keep registration order.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			checks[i] = probe(ctx, p)
		})
	}
	wg.Wait()

	ready := true
	log := logging.FromContext(r.Context())
	for _, c := range checks {
		if c.OK {
			continue
		}
		ready = false
		log.Warn("readiness probe failed", slog.String("dependency", c.Name), slog.String("error", c.Error))
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Ready: ready, Checks: checks})
}

func probe(ctx context.Context, p Pinger) readyCheck {
	c := readyCheck{Name: p.Name(), OK: true}
	if err := p.Ping(ctx); err != nil {
		c.OK = false
		c.Error = err.Error()
	}
	return c
}
