package memory

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

// SaveIndex stores a deep copy of the built index under catalogID, replacing
// any previous build for that catalog.
func (s *CatalogMemStorage) SaveIndex(ctx context.Context, catalogID string, index *common.SummaryIndex) error {
	cloned, err := cloneIndex(index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[catalogID] = cloned
	return nil
}

// GetIndex returns a deep copy of the stored index or store.ErrNotFound.
func (s *CatalogMemStorage) GetIndex(ctx context.Context, catalogID string) (*common.SummaryIndex, error) {
	s.mu.RLock()
	idx, ok := s.indexes[catalogID]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneIndex(idx)
}

// ListIndexes returns the ids of all stored catalogs, sorted.
func (s *CatalogMemStorage) ListIndexes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.indexes))
	for id := range s.indexes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteIndex removes the stored index for catalogID. Deleting a missing
// catalog is a no-op.
func (s *CatalogMemStorage) DeleteIndex(ctx context.Context, catalogID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, catalogID)
	return nil
}

// cloneIndex round-trips through JSON so stored indexes never alias caller
// memory.
func cloneIndex(index *common.SummaryIndex) (*common.SummaryIndex, error) {
	raw, err := json.Marshal(index)
	if err != nil {
		return nil, err
	}
	var out common.SummaryIndex
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
