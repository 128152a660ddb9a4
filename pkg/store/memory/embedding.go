package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

// SaveEmbedding indexes one chunk vector under its model tag. The first
// vector saved for a tag pins that tag's dimension; later saves must match
// it. Re-saving an existing (chunk, tag) pair replaces the vector, which
// makes re-indexing idempotent.
func (s *CatalogMemStorage) SaveEmbedding(ctx context.Context, embedding common.Embedding) error {
	if embedding.ModelTag == "" {
		return fmt.Errorf("embedding model tag is empty")
	}
	if len(embedding.Vector) == 0 {
		return common.Violated("embedding dimensions are constant", fmt.Sprintf("chunk %q: empty vector", embedding.ChunkID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[embedding.ChunkID]; !ok {
		return fmt.Errorf("chunk %q: %w", embedding.ChunkID, store.ErrNotFound)
	}

	dim, ok := s.dims[embedding.ModelTag]
	if !ok {
		s.dims[embedding.ModelTag] = len(embedding.Vector)
	} else if dim != len(embedding.Vector) {
		return common.Violated(
			"embedding dimensions are constant",
			fmt.Sprintf("model %q expects %d, chunk %q has %d", embedding.ModelTag, dim, embedding.ChunkID, len(embedding.Vector)),
		)
	}

	byChunk, ok := s.embeddings[embedding.ModelTag]
	if !ok {
		byChunk = make(map[string][]float32)
		s.embeddings[embedding.ModelTag] = byChunk
	}
	vec := make([]float32, len(embedding.Vector))
	copy(vec, embedding.Vector)
	byChunk[embedding.ChunkID] = vec
	return nil
}

// HasEmbedding reports whether a vector is already indexed for the given
// chunk and model tag. The pipeline uses it to skip recomputing embeddings.
func (s *CatalogMemStorage) HasEmbedding(ctx context.Context, chunkID string, modelTag string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byChunk, ok := s.embeddings[modelTag]
	if !ok {
		return false, nil
	}
	_, ok = byChunk[chunkID]
	return ok, nil
}

// SearchSimilar scans every vector indexed under modelTag and returns the k
// chunks most similar to the query by cosine similarity. Results order by
// descending score; equal scores order by the smaller chunk sequence index,
// then by chunk id, so a query always returns the same ranking.
func (s *CatalogMemStorage) SearchSimilar(ctx context.Context, vector []float32, modelTag string, k int) ([]store.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byChunk, ok := s.embeddings[modelTag]
	if !ok || len(byChunk) == 0 {
		return nil, nil
	}
	if dim := s.dims[modelTag]; dim != len(vector) {
		return nil, common.Violated(
			"embedding dimensions are constant",
			fmt.Sprintf("model %q expects %d, query has %d", modelTag, dim, len(vector)),
		)
	}

	hits := make([]store.SearchHit, 0, len(byChunk))
	for chunkID, vec := range byChunk {
		hits = append(hits, store.SearchHit{
			ChunkID:  chunkID,
			Score:    cosine(vector, vec),
			Sequence: s.chunks[chunkID].Sequence,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Sequence != hits[j].Sequence {
			return hits[i].Sequence < hits[j].Sequence
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosine returns the cosine similarity of two equal-length vectors. A zero
// vector has similarity 0 to everything.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
