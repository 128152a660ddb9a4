package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

// SaveChunks adds chunks to the store. Chunks are immutable: re-saving an
// identical chunk is a no-op, while a different chunk under an existing id
// violates the unique-id guarantee and fails the whole batch.
func (s *CatalogMemStorage) SaveChunks(ctx context.Context, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return common.Violated("chunk ids are non-empty", fmt.Sprintf("document %q sequence %d", c.DocumentID, c.Sequence))
		}
		if existing, ok := s.chunks[c.ID]; ok {
			if existing == c {
				continue
			}
			return common.Violated("chunk ids are unique", fmt.Sprintf("id %q already holds different content", c.ID))
		}
		s.chunks[c.ID] = c
		s.order = append(s.order, c.ID)
	}

	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.chunks[s.order[i]], s.chunks[s.order[j]]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Sequence < b.Sequence
	})

	logger.Debug("[Store][SaveChunks] stored chunks", "added", len(chunks), "total", len(s.chunks))
	return nil
}

// GetChunk returns the chunk with the given id or store.ErrNotFound.
func (s *CatalogMemStorage) GetChunk(ctx context.Context, id string) (*common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

// GetChunks returns the chunks for the given ids, in the order requested.
// Any missing id fails the lookup.
func (s *CatalogMemStorage) GetChunks(ctx context.Context, ids []string) ([]common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Chunk, 0, len(ids))
	for _, id := range ids {
		c, ok := s.chunks[id]
		if !ok {
			return nil, fmt.Errorf("chunk %q: %w", id, store.ErrNotFound)
		}
		out = append(out, c)
	}
	return out, nil
}

// ListChunks returns all chunks in corpus order: by document id, then by
// sequence index within the document.
func (s *CatalogMemStorage) ListChunks(ctx context.Context) ([]common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Chunk, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chunks[id])
	}
	return out, nil
}
