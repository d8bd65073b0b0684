// Package store persists chunk embeddings in PostgreSQL with pgvector and
// answers nearest-neighbour queries over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/deskwise/deskwise/internal/chunk"
)

// ErrNoChunks indicates an upsert was attempted with nothing to store.
var ErrNoChunks = errors.New("no chunks to store")

// DB is the subset of pgxpool.Pool the store needs. Defined by the consumer
// so tests can substitute a fake.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Embedder maps texts to vectors. Satisfied by *embed.Provider.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is one chunk returned from a similarity query, joined with
// the metadata of its source document.
type SearchResult struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Department   string
	Tags         []string
	Ordinal      int
	Text         string
	Similarity   float64
}

// Stats summarises the indexed collection.
type Stats struct {
	TotalChunks     int64
	UniqueDocuments int64
	Departments     []string
}

// Store embeds chunk texts and keeps the vectors next to the document
// records, so one database holds the whole knowledge base.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	embedder Embedder
	logger   *slog.Logger
}

// New creates a vector store. A nil logger falls back to slog.Default().
func New(db DB, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Upsert replaces the stored chunks of a document with the given set inside
// one transaction. Readers never observe a document half-indexed: either
// the old chunks are still there or the new ones are, never a mix.
func (s *Store) Upsert(ctx context.Context, documentID string, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: document %s", ErrNoChunks, documentID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks for document %s: %w", len(chunks), documentID, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk upsert for %s: %w", documentID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clearing old chunks for %s: %w", documentID, err)
	}

	for i, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (id, document_id, ordinal, content, embedding)
VALUES ($1, $2, $3, $4, $5)`,
			c.ID, documentID, c.Ordinal, c.Text, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk upsert for %s: %w", documentID, err)
	}

	s.logger.Debug("chunks upserted", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// Query embeds the query text and returns the topK most similar chunks,
// highest similarity first. Similarity is 1 minus cosine distance, so 1.0
// is identical and values fall toward 0 as relevance drops.
func (s *Store) Query(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT c.id, c.document_id, c.ordinal, c.content,
       d.original_name, d.department, d.tags,
       1 - (c.embedding <=> $1) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
ORDER BY c.embedding <=> $1
LIMIT $2`,
		pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, topK)
	for rows.Next() {
		var r SearchResult
		err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Ordinal, &r.Text,
			&r.DocumentName, &r.Department, &r.Tags, &r.Similarity)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// DeleteByDocument removes every chunk of a document. Idempotent: deleting
// a document with no chunks is not an error.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", documentID, err)
	}

	s.logger.Debug("chunks deleted", "document_id", documentID, "removed", tag.RowsAffected())
	return nil
}

// CountByDocument returns the number of stored chunks for a document.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for %s: %w", documentID, err)
	}
	return n, nil
}

// CollectionStats reports totals over the indexed collection.
func (s *Store) CollectionStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.db.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT document_id) FROM chunks`).
		Scan(&stats.TotalChunks, &stats.UniqueDocuments)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT DISTINCT d.department
FROM documents d
JOIN chunks c ON c.document_id = d.id
WHERE d.department <> ''
ORDER BY d.department`)
	if err != nil {
		return nil, fmt.Errorf("listing indexed departments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		stats.Departments = append(stats.Departments, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating departments: %w", err)
	}
	return &stats, nil
}
