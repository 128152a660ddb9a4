package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// SaveEmbedding upserts the vector for one (chunk, model tag) pair. All
// vectors stored under one model tag must share the dimension of the first
// vector saved for that tag.
func (s *CatalogDBStorage) SaveEmbedding(ctx context.Context, embedding common.Embedding) error {
	if embedding.ModelTag == "" {
		return fmt.Errorf("embedding model tag is empty")
	}
	if len(embedding.Vector) == 0 {
		return common.Violated("embeddings are non-empty",
			fmt.Sprintf("chunk %q tag %q", embedding.ChunkID, embedding.ModelTag))
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	dims, err := s.tagDimensions(ctx, embedding.ModelTag)
	if err != nil {
		return err
	}
	if dims > 0 && dims != len(embedding.Vector) {
		return common.Violated("embedding dimensions are constant",
			fmt.Sprintf("tag %q holds %d-dimensional vectors, got %d", embedding.ModelTag, dims, len(embedding.Vector)))
	}

	tag, err := s.conn.Exec(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, model_tag, embedding)
		SELECT c.id, $2, $3 FROM chunks c WHERE c.public_id = $1
		ON CONFLICT (chunk_id, model_tag) DO UPDATE SET embedding = EXCLUDED.embedding`,
		embedding.ChunkID, embedding.ModelTag, pgvector.NewVector(embedding.Vector),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %q: %w", embedding.ChunkID, store.ErrNotFound)
	}
	return nil
}

func (s *CatalogDBStorage) HasEmbedding(ctx context.Context, chunkID string, modelTag string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM chunk_embeddings e
			JOIN chunks c ON c.id = e.chunk_id
			WHERE c.public_id = $1 AND e.model_tag = $2
		)`,
		chunkID, modelTag,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// SearchSimilar returns up to k chunks ranked by cosine similarity to the
// query vector, most similar first. Exact ties resolve to the chunk with the
// smaller sequence index.
func (s *CatalogDBStorage) SearchSimilar(ctx context.Context, vector []float32, modelTag string, k int) ([]store.SearchHit, error) {
	if k <= 0 || modelTag == "" {
		return nil, nil
	}

	dims, err := s.tagDimensions(ctx, modelTag)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}
	if dims != len(vector) {
		return nil, common.Violated("embedding dimensions are constant",
			fmt.Sprintf("tag %q holds %d-dimensional vectors, query has %d", modelTag, dims, len(vector)))
	}

	rows, err := s.conn.Query(ctx, `
		SELECT c.public_id, 1 - (e.embedding <=> $1) AS score, c.sequence_index
		FROM chunk_embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE e.model_tag = $2
		ORDER BY e.embedding <=> $1 ASC, c.sequence_index ASC, c.public_id ASC
		LIMIT $3`,
		pgvector.NewVector(vector), modelTag, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var h store.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.Score, &h.Sequence); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// tagDimensions reports the dimension stored vectors of the tag share, or 0
// when the tag has no vectors yet.
func (s *CatalogDBStorage) tagDimensions(ctx context.Context, modelTag string) (int, error) {
	var dims int
	err := s.conn.QueryRow(ctx, `
		SELECT vector_dims(embedding)
		FROM chunk_embeddings
		WHERE model_tag = $1
		LIMIT 1`,
		modelTag,
	).Scan(&dims)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return dims, nil
}
