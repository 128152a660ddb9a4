package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

// Retrieve embeds the query text, asks the store for the top-K most similar
// chunks, and trims results from the tail of the ranked list until the total
// token count fits the budget. The ranked order is never changed.
//
// Query embeddings are cached per query text, so repeated lookups for the
// same candidate name embed once. An unavailable embedding backend surfaces
// as ai.ErrEmbeddingUnavailable; callers degrade to no-context operation.
func (c *CatalogClient) Retrieve(
	ctx context.Context,
	query common.RetrievalQuery,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) ([]common.Chunk, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, nil
	}

	k := query.K
	if k <= 0 {
		k = c.retrieveTopK
	}
	budget := query.TokenBudget
	if budget <= 0 {
		budget = c.retrieveTokenBudget
	}

	vector, err := c.embedQuery(ctx, text, aiClient)
	if err != nil {
		return nil, err
	}

	hits, err := storeClient.SearchSimilar(ctx, vector, c.modelTag, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ChunkID)
	}
	chunks, err := storeClient.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load retrieved chunks: %w", err)
	}

	return trimToBudget(chunks, budget), nil
}

// trimToBudget keeps the longest prefix of the ranked chunks whose total
// token count fits the budget. Chunks are dropped from the tail only.
func trimToBudget(chunks []common.Chunk, budget int) []common.Chunk {
	if budget <= 0 {
		return chunks
	}
	total := 0
	for i, chunk := range chunks {
		total += chunk.TokenCount
		if total > budget {
			return chunks[:i]
		}
	}
	return chunks
}

func (c *CatalogClient) embedQuery(
	ctx context.Context,
	text string,
	aiClient ai.CatalogAIClient,
) ([]float32, error) {
	if cached, ok := c.queryCache.Get(text); ok {
		return cached, nil
	}

	var vector []float32
	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = aiClient.GenerateEmbedding(ctx, []byte(text))
		return embedErr
	})
	if err != nil {
		return nil, err
	}

	c.queryCache.Add(text, vector)
	return vector, nil
}
