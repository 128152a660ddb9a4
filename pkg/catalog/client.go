package catalog

import (
	"github.com/OFFIS-RIT/clarifier/pkg/ai"

	lru "github.com/hashicorp/golang-lru/v2"
)

const queryCacheSize = 512

// CatalogClient runs the document-to-catalog pipeline: chunking, embedding,
// discovery, drafting, merging, dependency resolution, and index building.
// It holds run configuration and the normalization table; AI and storage
// clients are passed per call.
//
// A CatalogClient should be created using NewCatalogClient.
type CatalogClient struct {
	tokenEncoder        string
	modelTag            string
	chunkMaxTokens      int
	parallelEmbeddings  int
	parallelAiRequests  int
	retrieveTopK        int
	retrieveTokenBudget int
	refineDepth         int
	refineMinContext    int
	table               *NormalizationTable
	retryPolicy         ai.RetryPolicy

	queryCache *lru.Cache[string, []float32]
}

// NewCatalogClientParams defines the configuration parameters for creating
// a new CatalogClient.
//
// TokenEncoder names the tiktoken encoding used for chunking and retrieval
// budget accounting.
// ModelTag identifies the embedding model; stored vectors are keyed by it.
// ParallelEmbeddings and ParallelAiRequests bound the worker pools for chunk
// embedding and attribute drafting.
// RetrieveTopK and RetrieveTokenBudget default the retrieval query limits.
// RefineDepth bounds the orphan-refinement loop; 0 disables refinement.
// RefineMinContext is the minimum retrieved context length (in characters)
// required before refinement drafts a missing module.
// Table is the synonym table applied during name normalization; nil applies
// the base folding only.
type NewCatalogClientParams struct {
	TokenEncoder        string
	ModelTag            string
	ChunkMaxTokens      int
	ParallelEmbeddings  int
	ParallelAiRequests  int
	MaxRetries          int
	RetrieveTopK        int
	RetrieveTokenBudget int
	RefineDepth         int
	RefineMinContext    int
	Table               *NormalizationTable
}

// NewCatalogClient creates and returns a new CatalogClient configured with
// the provided parameters.
//
// Example:
//
//	params := catalog.NewCatalogClientParams{
//		TokenEncoder:       "cl100k_base",
//		ModelTag:           "nomic-embed-text",
//		ParallelAiRequests: 8,
//	}
//	client, err := catalog.NewCatalogClient(params)
//	if err != nil {
//		log.Fatal(err)
//	}
func NewCatalogClient(params NewCatalogClientParams) (*CatalogClient, error) {
	tokenEncoder := params.TokenEncoder
	if tokenEncoder == "" {
		tokenEncoder = "cl100k_base"
	}
	modelTag := params.ModelTag
	if modelTag == "" {
		modelTag = "default"
	}
	chunkMaxTokens := params.ChunkMaxTokens
	if chunkMaxTokens <= 0 {
		chunkMaxTokens = DefaultChunkMaxTokens
	}
	parallelEmbeddings := params.ParallelEmbeddings
	if parallelEmbeddings <= 0 {
		parallelEmbeddings = 4
	}
	parallelAiRequests := params.ParallelAiRequests
	if parallelAiRequests <= 0 {
		parallelAiRequests = 4
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retrieveTopK := params.RetrieveTopK
	if retrieveTopK <= 0 {
		retrieveTopK = 5
	}
	retrieveTokenBudget := params.RetrieveTokenBudget
	if retrieveTokenBudget <= 0 {
		retrieveTokenBudget = 2000
	}
	refineMinContext := params.RefineMinContext
	if refineMinContext <= 0 {
		refineMinContext = 100
	}

	cache, err := lru.New[string, []float32](queryCacheSize)
	if err != nil {
		return nil, err
	}

	retryPolicy := ai.DefaultRetryPolicy()
	retryPolicy.MaxRetries = maxRetries

	c := &CatalogClient{
		tokenEncoder:        tokenEncoder,
		modelTag:            modelTag,
		chunkMaxTokens:      chunkMaxTokens,
		parallelEmbeddings:  parallelEmbeddings,
		parallelAiRequests:  parallelAiRequests,
		retrieveTopK:        retrieveTopK,
		retrieveTokenBudget: retrieveTokenBudget,
		refineDepth:         params.RefineDepth,
		refineMinContext:    refineMinContext,
		table:               params.Table,
		retryPolicy:         retryPolicy,
		queryCache:          cache,
	}

	return c, nil
}

// setRetryPolicy replaces the adapter retry policy. Tests use it to shrink
// backoff delays.
func (c *CatalogClient) setRetryPolicy(p ai.RetryPolicy) {
	c.retryPolicy = p
}
