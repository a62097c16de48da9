// Package vectorstore manages the per-index chunk tables in Postgres:
// table lifecycle (create/recreate on dimension change), idempotent
// upsert, and cosine-distance ANN search. It replaces the donor's
// separate Qdrant-backed store with a single vector-capable relational
// store, per the pgvector-backed design this service was built around.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/knoguchi/docsearch/internal/apperr"
)

// Store manages per-index vector tables.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var validIndexName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// tableName returns the physical table name for indexName, after
// validating it is safe to interpolate into DDL. Index names are
// derived deterministically by internal/indexname and therefore always
// match this pattern in practice; this is a defense-in-depth check.
func tableName(indexName string) (string, error) {
	if !validIndexName.MatchString(indexName) {
		return "", fmt.Errorf("%w: invalid index name %q", apperr.ErrConfigInvalid, indexName)
	}
	return "docs_" + strings.ReplaceAll(indexName, "-", "_"), nil
}

// Chunk is a single stored document chunk.
type Chunk struct {
	URL       string
	Title     string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// SearchResult is a single ANN hit.
type SearchResult struct {
	URL     string
	Title   string
	Content string
	Score   float64
}

// EnsureStore implements ensureStore(indexName, dimension): it ensures
// the vector extension is installed, drops the table if its declared
// dimension differs from dimension, creates it if absent, and builds
// the ANN + url indexes.
func (s *Store) EnsureStore(ctx context.Context, indexName string, dimension int) error {
	table, err := tableName(indexName)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("%w: create extension: %v", apperr.ErrVectorStoreUnavailable, err)
	}

	existingDim, exists, err := s.currentDimension(ctx, table)
	if err != nil {
		return fmt.Errorf("%w: inspect table: %v", apperr.ErrVectorStoreUnavailable, err)
	}
	if exists && existingDim != dimension {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("%w: drop table on dimension change: %v", apperr.ErrVectorStoreUnavailable, err)
		}
		exists = false
	}

	if !exists {
		createSQL := fmt.Sprintf(`
			CREATE TABLE %s (
				id BIGSERIAL PRIMARY KEY,
				url TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`, table, dimension)
		if _, err := s.pool.Exec(ctx, createSQL); err != nil {
			return fmt.Errorf("%w: create table: %v", apperr.ErrVectorStoreUnavailable, err)
		}
	}

	if err := s.ensureANNIndex(ctx, table, dimension); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrVectorStoreUnavailable, err)
	}

	urlIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url)`, table, table)
	if _, err := s.pool.Exec(ctx, urlIdx); err != nil {
		return fmt.Errorf("%w: create url index: %v", apperr.ErrVectorStoreUnavailable, err)
	}

	return nil
}

// ensureANNIndex prefers HNSW with cosine distance; falls back to
// IVFFlat when dimension <= 2000 and HNSW creation fails; skips the ANN
// index entirely (linear scan at query time) when dimension > 2000 and
// HNSW is unavailable.
func (s *Store) ensureANNIndex(ctx context.Context, table string, dimension int) error {
	hnsw := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_hnsw_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table)
	if _, err := s.pool.Exec(ctx, hnsw); err == nil {
		return nil
	}

	if dimension <= 2000 {
		ivf := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_ivfflat_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, table, table)
		if _, err := s.pool.Exec(ctx, ivf); err != nil {
			return fmt.Errorf("create ivfflat index: %w", err)
		}
		return nil
	}

	// dimension > 2000 and HNSW unavailable: fall back to linear scan.
	return nil
}

func (s *Store) currentDimension(ctx context.Context, table string) (int, bool, error) {
	var dim int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'
	`, table).Scan(&dim)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return dim, true, nil
}

func isUndefinedTable(err error) bool {
	// pgx surfaces "relation ... does not exist" as a generic error when
	// casting an unknown table name to regclass; string match is the
	// pragmatic option here since pgconn.PgError codes for this path
	// vary by Postgres version.
	return strings.Contains(err.Error(), "does not exist")
}

// Upsert implements upsert(indexName, url, title, content, embedding,
// metadata): insert by url; on conflict, overwrite
// title/content/embedding/metadata.
func (s *Store) Upsert(ctx context.Context, indexName string, c Chunk) error {
	table, err := tableName(indexName)
	if err != nil {
		return err
	}

	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("vectorstore: marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (url, title, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO UPDATE
		SET title = EXCLUDED.title, content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
	`, table)

	_, err = s.pool.Exec(ctx, query, c.URL, c.Title, c.Content, pgvector.NewVector(c.Embedding), metaJSON)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", apperr.ErrVectorStoreUnavailable, err)
	}
	return nil
}

// AnnSearch implements annSearch(indexName, queryVector, k): returns
// the top-k chunks ordered by ascending cosine distance, with
// score = 1 - distance. Ties in distance break on ascending url.
func (s *Store) AnnSearch(ctx context.Context, indexName string, queryVector []float32, k int) ([]SearchResult, error) {
	table, err := tableName(indexName)
	if err != nil {
		return nil, err
	}
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}

	query := fmt.Sprintf(`
		SELECT url, title, content, (embedding <=> $1) AS distance
		FROM %s
		ORDER BY distance ASC, url ASC
		LIMIT $2
	`, table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(queryVector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", apperr.ErrVectorStoreUnavailable, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.URL, &r.Title, &r.Content, &distance); err != nil {
			return nil, fmt.Errorf("%w: scan search row: %v", apperr.ErrVectorStoreUnavailable, err)
		}
		r.Score = 1 - distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrVectorStoreUnavailable, err)
	}
	return results, nil
}
