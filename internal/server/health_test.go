package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// TestHandleHealth_OK verifies that GET /health returns 200 with the
// configured backends and never probes them.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.cfg.Health = HealthInfo{
		Provider:           "ollama",
		Model:              "llama3",
		ProviderConfigured: true,
		VectorDBConfigured: true,
		Collection:         "docs",
	}
	s.pingers = []Pinger{&fakePinger{name: "qdrant", err: errors.New("down")}}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status: expected %q, got %q", "healthy", body.Status)
	}
	if body.Version == "" || body.System.Go == "" || body.Timestamp == 0 {
		t.Errorf("missing build/runtime info: %+v", body)
	}
	if body.Model.Provider != "ollama" || !body.Model.Configured {
		t.Errorf("model: got %+v", body.Model)
	}
	if body.VectorDB.Provider != "qdrant" || body.VectorDB.Collection != "docs" || !body.VectorDB.Configured {
		t.Errorf("vectordb: got %+v", body.VectorDB)
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	cases := []struct {
		name    string
		pingers []Pinger
		want    int
		failed  []string
	}{
		{name: "no pingers", want: http.StatusOK},
		{
			name:    "all healthy",
			pingers: []Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "qdrant"}},
			want:    http.StatusOK,
		},
		{
			name:    "one failing",
			pingers: []Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "qdrant", err: down}},
			want:    http.StatusServiceUnavailable,
			failed:  []string{"qdrant"},
		},
		{
			name:    "all failing",
			pingers: []Pinger{&fakePinger{name: "ollama", err: errors.New("timeout")}, &fakePinger{name: "qdrant", err: down}},
			want:    http.StatusServiceUnavailable,
			failed:  []string{"ollama", "qdrant"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newReadyTestServer(tc.pingers...)
			w := httptest.NewRecorder()

			s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: got %q", ct)
			}
			var resp readyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != (tc.want == http.StatusOK) {
				t.Errorf("ready=%v with status %d", resp.Ready, w.Code)
			}
			if len(resp.Checks) != len(tc.pingers) {
				t.Fatalf("expected %d checks, got %d", len(tc.pingers), len(resp.Checks))
			}
			var failed []string
			for _, c := range resp.Checks {
				if c.OK != (c.Error == "") {
					t.Errorf("check %q: ok=%v but error=%q", c.Name, c.OK, c.Error)
				}
				if !c.OK {
					failed = append(failed, c.Name)
				}
			}
			if strings.Join(failed, ",") != strings.Join(tc.failed, ",") {
				t.Errorf("failed checks: expected %v, got %v", tc.failed, failed)
			}
		})
	}
}

// TestHandleReady_PreservesOrder verifies that checks are reported in
// registration order even though probes run concurrently.
func TestHandleReady_PreservesOrder(t *testing.T) {
	t.Parallel()

	names := []string{"qdrant", "ollama", "reranker", "embedder"}
	pingers := make([]Pinger, len(names))
	for i, n := range names {
		pingers[i] = &fakePinger{name: n}
	}
	s := newReadyTestServer(pingers...)
	w := httptest.NewRecorder()

	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, c := range resp.Checks {
		if c.Name != names[i] {
			t.Errorf("check %d: expected %q, got %q", i, names[i], c.Name)
		}
	}
}

// TestPingers_WrapErrors verifies the concrete pingers label and wrap the
// underlying probe error.
func TestPingers_WrapErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	llm := NewLLMPinger(&fakePinger{err: cause}, "openai")
	if llm.Name() != "openai" {
		t.Errorf("llm name: got %q", llm.Name())
	}
	if err := llm.Ping(context.Background()); !errors.Is(err, cause) {
		t.Errorf("llm: expected wrapped cause, got %v", err)
	}

	q := NewQdrantPinger(&fakePinger{err: cause})
	if q.Name() != "qdrant" {
		t.Errorf("qdrant name: got %q", q.Name())
	}
	if err := q.Ping(context.Background()); !errors.Is(err, cause) {
		t.Errorf("qdrant: expected wrapped cause, got %v", err)
	}
	if err := NewQdrantPinger(&fakePinger{}).Ping(context.Background()); err != nil {
		t.Errorf("healthy qdrant: got %v", err)
	}
}
