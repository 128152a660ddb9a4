package memory

import (
	"sync"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
)

// CatalogMemStorage implements the store.CatalogStorage interface fully in
// memory. It is the default backend when no database is configured and the
// reference implementation of the similarity semantics: exact cosine scan
// over every indexed chunk, descending score, ties broken by the smaller
// sequence index.
type CatalogMemStorage struct {
	mu sync.RWMutex

	chunks map[string]common.Chunk
	// order holds chunk ids sorted by (DocumentID, Sequence); ListChunks
	// serves the corpus in this order.
	order []string

	// embeddings[modelTag][chunkID] = vector
	embeddings map[string]map[string][]float32
	// dims pins the vector length per model tag at first save.
	dims map[string]int

	indexes map[string]*common.SummaryIndex
}

// NewCatalogMemStorage creates an empty in-memory store.
func NewCatalogMemStorage() *CatalogMemStorage {
	return &CatalogMemStorage{
		chunks:     make(map[string]common.Chunk),
		embeddings: make(map[string]map[string][]float32),
		dims:       make(map[string]int),
		indexes:    make(map[string]*common.SummaryIndex),
	}
}
