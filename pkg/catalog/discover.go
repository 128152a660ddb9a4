package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

type discoverResponse struct {
	Modules []string `json:"modules" jsonschema_description:"Names of software modules mentioned in the chunk, exactly as written in the text"`
}

// identifierRe matches identifier-shaped tokens: CamelCase names with at
// least two humps, or snake_case names with at least two segments.
var identifierRe = regexp.MustCompile(
	`\b(?:[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]*)+|[a-zA-Z][a-zA-Z0-9]*(?:_[a-zA-Z0-9]+)+)\b`,
)

// lexicalCandidates proposes module names from surface shape alone, in
// order of first appearance.
func lexicalCandidates(text string) []string {
	matches := identifierRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Discover scans the chunks in corpus order and proposes candidate modules.
// Per chunk it combines lexical heuristics with one schema-constrained
// inference call seeded by retrieved context; candidates whose names share a
// normalization key are coalesced immediately, first-seen name and order
// winning. A failed or unparseable discovery call contributes no AI
// candidates for that chunk and the scan continues.
//
// The second return value reports whether retrieval degraded to no-context
// mode at least once.
func (c *CatalogClient) Discover(
	ctx context.Context,
	chunks []common.Chunk,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) ([]common.Candidate, bool, error) {
	degraded := false
	byKey := make(map[string]*common.Candidate)
	var order []string

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, degraded, err
		}

		contextChunks, err := c.retrieveForChunk(ctx, chunk, aiClient, storeClient)
		if err != nil {
			if !errors.Is(err, ai.ErrEmbeddingUnavailable) {
				return nil, degraded, err
			}
			if !degraded {
				logger.Warn("[Catalog] Embedding backend unavailable, discovery continues without retrieval")
			}
			degraded = true
			contextChunks = nil
		}

		names := lexicalCandidates(chunk.Text)
		aiNames, err := c.discoverChunk(ctx, chunk, i, len(chunks), contextChunks, aiClient)
		if err != nil {
			return nil, degraded, err
		}
		names = append(names, aiNames...)

		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := c.table.Key(name)
			if key == "" {
				continue
			}

			cand, ok := byKey[key]
			if !ok {
				byKey[key] = &common.Candidate{
					Name:      name,
					Variants:  []string{name},
					Evidence:  []string{chunk.ID},
					FirstSeen: len(order),
				}
				order = append(order, key)
				continue
			}
			if !containsString(cand.Variants, name) {
				cand.Variants = append(cand.Variants, name)
			}
			if !containsString(cand.Evidence, chunk.ID) {
				cand.Evidence = append(cand.Evidence, chunk.ID)
			}
		}
	}

	candidates := make([]common.Candidate, 0, len(order))
	for _, key := range order {
		candidates = append(candidates, *byKey[key])
	}

	logger.Info("[Catalog] Discovery completed", "chunks", len(chunks), "candidates", len(candidates))

	return candidates, degraded, nil
}

// retrieveForChunk fetches similar chunks as discovery context, excluding
// the chunk under inspection.
func (c *CatalogClient) retrieveForChunk(
	ctx context.Context,
	chunk common.Chunk,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) ([]common.Chunk, error) {
	retrieved, err := c.Retrieve(ctx, common.RetrievalQuery{Text: chunk.Text}, aiClient, storeClient)
	if err != nil {
		return nil, err
	}
	return withoutChunk(retrieved, chunk.ID), nil
}

// discoverChunk issues the discovery inference call for one chunk. Failures
// are contained: transient errors are retried, anything still failing (or
// unparseable) yields zero AI candidates.
func (c *CatalogClient) discoverChunk(
	ctx context.Context,
	chunk common.Chunk,
	position int,
	total int,
	contextChunks []common.Chunk,
	aiClient ai.CatalogAIClient,
) ([]string, error) {
	prompt := fmt.Sprintf(
		ai.DiscoverPrompt,
		chunk.DocumentID,
		position+1,
		total,
		chunk.Text,
		renderContext(contextChunks),
	)

	var res discoverResponse
	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		res = discoverResponse{}
		return aiClient.GenerateCompletionWithFormat(
			ctx,
			"discover_modules",
			"List every software module mentioned in a documentation chunk.",
			prompt,
			&res,
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("[Catalog] Discovery call contributed no candidates",
			"chunk", chunk.ID, "error", err)
		return nil, nil
	}

	return res.Modules, nil
}

// renderContext formats retrieved chunks for prompt inclusion.
func renderContext(chunks []common.Chunk) string {
	if len(chunks) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s #%d] %s", chunk.DocumentID, chunk.Sequence, chunk.Text)
	}
	return sb.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
