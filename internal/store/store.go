// Package store provides a SQLite-backed log of answered queries. Each entry
// keeps the question, the accepted answer, the passages it was generated from
// and its groundedness, which is the sample shape offline evaluation consumes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/groundrag/internal/engine"
)

// Entry is one logged query.
type Entry struct {
	// ID is assigned by the store on Record.
	ID int64 `json:"id"`
	// Question is the user's query text.
	Question string `json:"question"`
	// Answer is the accepted answer.
	Answer string `json:"answer"`
	// Contexts are the cited passage texts, in citation order.
	Contexts []string `json:"contexts"`
	// Sources are the cited source ids, parallel to Contexts.
	Sources []string `json:"sources"`
	// Groundedness is nil when the self-check was unavailable.
	Groundedness *float64 `json:"groundedness"`
	// TopK and Rerank echo the request parameters.
	TopK   int  `json:"top_k"`
	Rerank bool `json:"rerank"`
	// RetryAttempted and RetryAdopted mirror engine.RetryOutcome.
	RetryAttempted bool `json:"retry_attempted"`
	RetryAdopted   bool `json:"retry_adopted"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry builds an Entry from a finished engine run.
func NewEntry(question string, topK int, rerank bool, res *engine.QueryResult) Entry {
	e := Entry{
		Question:       question,
		Answer:         res.Answer,
		Contexts:       make([]string, len(res.Citations)),
		Sources:        make([]string, len(res.Citations)),
		Groundedness:   res.Groundedness,
		TopK:           topK,
		Rerank:         rerank,
		RetryAttempted: res.Retry.Attempted,
		RetryAdopted:   res.Retry.Adopted,
	}
	for i, c := range res.Citations {
		e.Contexts[i] = c.Text
		e.Sources[i] = c.SourceID
	}
	return e
}

// QueryLog persists and lists answered queries. Implementations must be safe
// for concurrent use.
type QueryLog interface {
	// Record persists e and returns its id.
	Record(ctx context.Context, e Entry) (int64, error)
	// Recent returns the most recent n entries ordered oldest-first. If fewer
	// than n entries exist, all are returned.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a QueryLog backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.groundrag/queries.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".groundrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "queries.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    question        TEXT    NOT NULL,
    answer          TEXT    NOT NULL,
    contexts        TEXT    NOT NULL,  -- JSON array of passage texts
    sources         TEXT    NOT NULL,  -- JSON array of source ids
    groundedness    REAL,              -- NULL when unavailable
    top_k           INTEGER NOT NULL,
    rerank          INTEGER NOT NULL,
    retry_attempted INTEGER NOT NULL,
    retry_adopted   INTEGER NOT NULL,
    created_at      INTEGER NOT NULL   -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists e. Its ID and CreatedAt fields are ignored.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) (int64, error) {
	contexts, err := json.Marshal(nonNil(e.Contexts))
	if err != nil {
		return 0, fmt.Errorf("store: encode contexts: %w", err)
	}
	sources, err := json.Marshal(nonNil(e.Sources))
	if err != nil {
		return 0, fmt.Errorf("store: encode sources: %w", err)
	}

	const q = `
INSERT INTO queries (question, answer, contexts, sources, groundedness, top_k, rerank,
                     retry_attempted, retry_adopted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		e.Question, e.Answer, string(contexts), string(sources), e.Groundedness,
		e.TopK, e.Rerank, e.RetryAttempted, e.RetryAdopted, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: record id: %w", err)
	}
	return id, nil
}

// Recent returns the most recent n entries, ordered oldest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, question, answer, contexts, sources, groundedness, top_k, rerank,
       retry_attempted, retry_adopted, created_at
FROM (
    SELECT * FROM queries
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			contexts, sources string
			groundedness      sql.NullFloat64
			ts                int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &contexts, &sources, &groundedness,
			&e.TopK, &e.Rerank, &e.RetryAttempted, &e.RetryAdopted, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(contexts), &e.Contexts); err != nil {
			return nil, fmt.Errorf("store: decode contexts of entry %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("store: decode sources of entry %d: %w", e.ID, err)
		}
		if groundedness.Valid {
			g := groundedness.Float64
			e.Groundedness = &g
		}
		e.CreatedAt = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
