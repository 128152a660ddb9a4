package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
)

// ErrNotFound is returned when a requested chunk or catalog index does not
// exist in the store.
var ErrNotFound = errors.New("not found")

// SearchHit is one result of a similarity search: the matched chunk, its
// cosine similarity to the query in [-1, 1], and the chunk's sequence index
// used for deterministic tie-breaking.
type SearchHit struct {
	ChunkID  string
	Score    float64
	Sequence int
}

// CatalogStorage defines the interface for persisting chunks, their
// embeddings, and built summary indexes. It backs three pipeline concerns:
// the chunk store (immutable chunks in corpus order), the embedding index
// (nearest-neighbour lookup with a persistent cache keyed by chunk id and
// model tag), and catalog persistence for serving built indexes.
//
// Implementations must enforce the structural guarantees: chunk ids are
// unique and chunks immutable once saved; embeddings of one model tag all
// share one dimension; similarity results order by descending score with
// ties broken by the smaller sequence index.
type CatalogStorage interface {
	SaveChunks(ctx context.Context, chunks []common.Chunk) error
	GetChunk(ctx context.Context, id string) (*common.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]common.Chunk, error)
	ListChunks(ctx context.Context) ([]common.Chunk, error)

	SaveEmbedding(ctx context.Context, embedding common.Embedding) error
	HasEmbedding(ctx context.Context, chunkID string, modelTag string) (bool, error)
	SearchSimilar(ctx context.Context, vector []float32, modelTag string, k int) ([]SearchHit, error)

	SaveIndex(ctx context.Context, catalogID string, index *common.SummaryIndex) error
	GetIndex(ctx context.Context, catalogID string) (*common.SummaryIndex, error)
	ListIndexes(ctx context.Context) ([]string, error)
	DeleteIndex(ctx context.Context, catalogID string) error
}
