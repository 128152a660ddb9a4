package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/clarifier/internal/util"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// SaveChunks persists a batch of chunks in bounded transactions. Chunks are
// immutable: re-saving an identical chunk is a no-op, while a different chunk
// under an existing id fails the whole batch.
func (s *CatalogDBStorage) SaveChunks(ctx context.Context, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batchSize := 1000
	err := store.BatchRange(len(chunks), batchSize, func(start, end int) error {
		part := make([]common.Chunk, end-start)
		copy(part, chunks[start:end])

		count := len(part)
		publicIDs := make([]string, 0, count)
		documentIDs := make([]string, 0, count)
		sequences := make([]int32, 0, count)
		texts := make([]string, 0, count)
		tokenCounts := make([]int32, 0, count)
		for i := range part {
			if part[i].ID == "" {
				return common.Violated("chunk ids are non-empty",
					fmt.Sprintf("document %q sequence %d", part[i].DocumentID, part[i].Sequence))
			}
			part[i].Text = util.SanitizePostgresText(part[i].Text)
			publicIDs = append(publicIDs, part[i].ID)
			documentIDs = append(documentIDs, part[i].DocumentID)
			sequences = append(sequences, int32(part[i].Sequence))
			texts = append(texts, part[i].Text)
			tokenCounts = append(tokenCounts, int32(part[i].TokenCount))
		}

		logger.Debug("[Store][SaveChunks] Bulk upserting chunks", "chunks", count)

		s.dbLock.Lock()
		defer s.dbLock.Unlock()

		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx, `
			INSERT INTO chunks (public_id, document_id, sequence_index, text, token_count)
			SELECT * FROM unnest($1::text[], $2::text[], $3::int[], $4::text[], $5::int[])
			ON CONFLICT (public_id) DO NOTHING`,
			publicIDs, documentIDs, sequences, texts, tokenCounts,
		)
		if err != nil {
			return err
		}

		// Ids that conflicted kept their stored row. Verify that row matches
		// what we were asked to write.
		rows, err := tx.Query(ctx, `
			SELECT public_id, document_id, sequence_index, text, token_count
			FROM chunks
			WHERE public_id = ANY($1::text[])`,
			store.DedupeStrings(publicIDs),
		)
		if err != nil {
			return err
		}
		stored, err := scanChunkRows(rows)
		if err != nil {
			return err
		}
		storedByID := make(map[string]common.Chunk, len(stored))
		for _, c := range stored {
			storedByID[c.ID] = c
		}
		for _, c := range part {
			got, ok := storedByID[c.ID]
			if !ok {
				return fmt.Errorf("chunk %q missing after upsert", c.ID)
			}
			if got != c {
				return common.Violated("chunk ids are unique",
					fmt.Sprintf("id %q already holds different content", c.ID))
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	logger.Debug("[Store][SaveChunks] Bulk upsert completed", "chunks", len(chunks))
	return nil
}

func (s *CatalogDBStorage) GetChunk(ctx context.Context, id string) (*common.Chunk, error) {
	var c common.Chunk
	err := s.conn.QueryRow(ctx, `
		SELECT public_id, document_id, sequence_index, text, token_count
		FROM chunks
		WHERE public_id = $1`,
		id,
	).Scan(&c.ID, &c.DocumentID, &c.Sequence, &c.Text, &c.TokenCount)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, fmt.Errorf("chunk %q: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// GetChunks resolves the given ids, preserving the requested order. A missing
// id fails the whole lookup.
func (s *CatalogDBStorage) GetChunks(ctx context.Context, ids []string) ([]common.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT public_id, document_id, sequence_index, text, token_count
		FROM chunks
		WHERE public_id = ANY($1::text[])`,
		store.DedupeStrings(ids),
	)
	if err != nil {
		return nil, err
	}
	found, err := scanChunkRows(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]common.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	out := make([]common.Chunk, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("chunk %q: %w", id, store.ErrNotFound)
		}
		out = append(out, c)
	}
	return out, nil
}

// ListChunks returns every stored chunk in corpus order.
func (s *CatalogDBStorage) ListChunks(ctx context.Context) ([]common.Chunk, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT public_id, document_id, sequence_index, text, token_count
		FROM chunks
		ORDER BY document_id, sequence_index, public_id`,
	)
	if err != nil {
		return nil, err
	}
	return scanChunkRows(rows)
}

func scanChunkRows(rows pgxv5.Rows) ([]common.Chunk, error) {
	defer rows.Close()

	var out []common.Chunk
	for rows.Next() {
		var c common.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Sequence, &c.Text, &c.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
