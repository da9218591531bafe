package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/54b3r/groundrag/internal/engine"
	"github.com/54b3r/groundrag/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_RecordAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	g := 0.82
	id, err := s.Record(ctx, Entry{
		Question:       "what is qdrant?",
		Answer:         "a vector database",
		Contexts:       []string{"Qdrant is a vector database."},
		Sources:        []string{"qdrant.md"},
		Groundedness:   &g,
		TopK:           5,
		Rerank:         true,
		RetryAttempted: true,
		RetryAdopted:   true,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id <= 0 {
		t.Errorf("want positive id, got %d", id)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != id || e.Question != "what is qdrant?" || e.Answer != "a vector database" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Contexts) != 1 || e.Contexts[0] != "Qdrant is a vector database." {
		t.Errorf("contexts: got %v", e.Contexts)
	}
	if len(e.Sources) != 1 || e.Sources[0] != "qdrant.md" {
		t.Errorf("sources: got %v", e.Sources)
	}
	if e.Groundedness == nil || *e.Groundedness != 0.82 {
		t.Errorf("groundedness: got %v", e.Groundedness)
	}
	if e.TopK != 5 || !e.Rerank || !e.RetryAttempted || !e.RetryAdopted {
		t.Errorf("flags not round-tripped: %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("want CreatedAt set")
	}
}

func Test_Store_NullGroundednessAndEmptyContexts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, Entry{Question: "q", TopK: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if entries[0].Groundedness != nil {
		t.Errorf("want nil groundedness, got %v", *entries[0].Groundedness)
	}
	if entries[0].Contexts == nil || len(entries[0].Contexts) != 0 {
		t.Errorf("want empty non-nil contexts, got %#v", entries[0].Contexts)
	}
}

func Test_Store_RecentLimitAndOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		if _, err := s.Record(ctx, Entry{Question: fmt.Sprintf("q%d", i), TopK: 1}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if entries[i].Question != want {
			t.Errorf("entry[%d]: want %q, got %q", i, want, entries[i].Question)
		}
	}
}

func Test_Store_EmptyReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("want 0 entries, got %d", len(entries))
	}
}

func Test_NewEntry(t *testing.T) {
	t.Parallel()

	g := 0.5
	res := &engine.QueryResult{
		Answer: "a",
		Citations: []rag.RetrievedPassage{
			{Text: "t1", SourceID: "s1"},
			{Text: "t2", SourceID: "s2"},
		},
		Groundedness: &g,
		Retry:        engine.RetryOutcome{Attempted: true},
	}
	e := NewEntry("q", 2, false, res)
	if e.Question != "q" || e.Answer != "a" || e.TopK != 2 || e.Rerank {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Contexts) != 2 || e.Contexts[1] != "t2" || e.Sources[0] != "s1" {
		t.Errorf("contexts/sources: %v %v", e.Contexts, e.Sources)
	}
	if !e.RetryAttempted || e.RetryAdopted {
		t.Errorf("retry flags: %+v", e)
	}
}
