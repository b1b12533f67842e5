// Package postgres implements knowledge retrieval against a self-hosted
// PostgreSQL knowledge base with a pgvector HNSW index.
//
// Documents are stored pre-embedded; a search embeds the query once and runs
// an approximate nearest-neighbour scan by cosine distance. Organisations
// that do not use the hosted KM API point their knowledge id at a local
// corpus instead.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/AmityCo/answercore/pkg/provider/embeddings"
	"github.com/AmityCo/answercore/pkg/provider/km"
	"github.com/AmityCo/answercore/pkg/types"
)

// Store implements [km.Provider] over a pgx connection pool.
// All methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

var _ km.Provider = (*Store)(nil)

// New creates a Store using the given pool and query embedder. The caller
// owns the pool's lifecycle.
func New(pool *pgxpool.Pool, embedder embeddings.Provider) *Store {
	return &Store{pool: pool, embedder: embedder}
}

// Search implements [km.Provider]. The transcript and keywords collapse into
// one embedded query; results are ordered by ascending cosine distance and
// scored as 1 - distance.
func (s *Store) Search(ctx context.Context, q km.Query) (types.KMResult, error) {
	queryText := buildQueryText(q)
	if queryText == "" {
		return types.KMResult{Data: []types.KMHit{}}, nil
	}

	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return types.KMResult{}, fmt.Errorf("km postgres: embed query: %w", err)
	}

	limit := q.MaxResults
	if limit <= 0 {
		limit = km.DefaultMaxResults
	}

	const sql = `
		SELECT id, public_id, content, sample_questions, metadata,
		       embedding <=> $1 AS distance
		FROM documents
		WHERE knowledge_id = $2
		ORDER BY distance
		LIMIT $3`

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vec), q.KnowledgeID, limit)
	if err != nil {
		return types.KMResult{}, fmt.Errorf("km postgres: search: %w", err)
	}
	defer rows.Close()

	hits := []types.KMHit{}
	for rows.Next() {
		var (
			doc      types.Document
			rawMeta  []byte
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.PublicID, &doc.Content, &doc.SampleQuestions, &rawMeta, &distance); err != nil {
			return types.KMResult{}, fmt.Errorf("km postgres: scan row: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &doc.Metadata); err != nil {
				return types.KMResult{}, fmt.Errorf("km postgres: decode metadata for %s: %w", doc.ID, err)
			}
		}
		score := 1 - distance
		hits = append(hits, types.KMHit{
			DocumentID:    doc.ID,
			Document:      doc,
			Score:         score,
			RerankerScore: score,
		})
	}
	if err := rows.Err(); err != nil {
		return types.KMResult{}, fmt.Errorf("km postgres: iterate rows: %w", err)
	}

	return types.KMResult{Data: hits, Total: len(hits)}, nil
}

// Ping reports whether the knowledge store is reachable. Used as a readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("km postgres: ping: %w", err)
	}
	return nil
}

// buildQueryText collapses the query text and keywords into the string that
// gets embedded.
func buildQueryText(q km.Query) string {
	parts := make([]string, 0, 1+len(q.Keywords))
	if t := strings.TrimSpace(q.Text); t != "" {
		parts = append(parts, t)
	}
	for _, kw := range q.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	return strings.Join(parts, " ")
}
