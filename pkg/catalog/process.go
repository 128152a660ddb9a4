package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/loader"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// BuildCatalog runs the full pipeline over the given documents and publishes
// the resulting summary index under catalogID: chunking, embedding,
// discovery, drafting, optional refinement, merging, dependency resolution,
// and index persistence.
//
// Chunk embedding and attribute drafting run on bounded worker pools; every
// other stage is single-threaded in deterministic order, so two runs over
// the same corpus produce the same catalog regardless of completion order.
// Cancelling the context stops the run without publishing anything. An
// empty corpus publishes an empty catalog.
func (c *CatalogClient) BuildCatalog(
	ctx context.Context,
	documents []loader.Document,
	catalogID string,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) (*common.SummaryIndex, error) {
	started := time.Now()
	aiClient.ResetMetrics()

	runID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	logger.Info("[Catalog] Build started",
		"run", runID, "catalog", catalogID, "documents", len(documents))

	chunks, err := ChunkDocuments(ctx, documents, c.tokenEncoder, c.chunkMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}
	if err := storeClient.SaveChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	degraded, err := c.embedChunks(ctx, chunks, aiClient, storeClient)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates, discoverDegraded, err := c.Discover(ctx, chunks, aiClient, storeClient)
	if err != nil {
		return nil, err
	}
	degraded = degraded || discoverDegraded

	drafts, mentions, draftDegraded, err := c.draftCandidates(ctx, candidates, chunks, aiClient, storeClient)
	if err != nil {
		return nil, err
	}
	degraded = degraded || draftDegraded

	refined := 0
	if c.refineDepth > 0 {
		outcome, err := c.refine(ctx, candidates, drafts, mentions, chunks, aiClient, storeClient)
		if err != nil {
			return nil, err
		}
		candidates = outcome.candidates
		drafts = outcome.drafts
		mentions = outcome.mentions
		refined = outcome.refined
		degraded = degraded || outcome.degraded
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modules, contested, err := c.Merge(drafts, candidates, chunks)
	if err != nil {
		return nil, err
	}
	graph, orphans, cycles := c.Resolve(modules, mentions, chunks)

	failedDrafts := 0
	for _, draft := range drafts {
		if draft.Confidence == 0 && len(draft.Fields) == 0 {
			failedDrafts++
		}
	}

	meta := common.BuildMeta{
		RunID:              runID,
		BuiltAt:            started.UTC(),
		ModelTag:           c.modelTag,
		ChunkCount:         len(chunks),
		DraftCount:         len(drafts),
		FailedDrafts:       failedDrafts,
		RetrievalDegraded:  degraded,
		Contested:          contested,
		Orphans:            orphans,
		Cycles:             cycles,
		RefinedModuleCount: refined,
		DurationMs:         time.Since(started).Milliseconds(),
	}

	index, err := BuildIndex(modules, graph, meta)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storeClient.SaveIndex(ctx, catalogID, index); err != nil {
		return nil, fmt.Errorf("failed to save catalog index: %w", err)
	}

	metrics := aiClient.GetMetrics()
	logger.Info("[Catalog] Build completed",
		"run", runID,
		"catalog", catalogID,
		"chunks", len(chunks),
		"modules", len(modules),
		"edges", len(graph.Edges),
		"failed_drafts", failedDrafts,
		"duration_ms", meta.DurationMs,
		"ai_tokens", metrics.TotalTokens,
	)

	return index, nil
}

// embedChunks computes and persists an embedding for every chunk that does
// not already have one under the current model tag, on a worker pool bounded
// by parallelEmbeddings. A chunk whose embedding cannot be generated
// degrades retrieval for the run; failing to persist a generated embedding
// is fatal.
func (c *CatalogClient) embedChunks(
	ctx context.Context,
	chunks []common.Chunk,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) (bool, error) {
	var (
		mu       sync.Mutex
		degraded bool
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelEmbeddings)

	for _, chunk := range chunks {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			default:
			}

			exists, err := storeClient.HasEmbedding(gCtx, chunk.ID, c.modelTag)
			if err != nil {
				return fmt.Errorf("embedding lookup failed: %w", err)
			}
			if exists {
				return nil
			}

			var vector []float32
			err = c.retryPolicy.Do(gCtx, func(ctx context.Context) error {
				var embedErr error
				vector, embedErr = aiClient.GenerateEmbedding(ctx, []byte(chunk.Text))
				return embedErr
			})
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				if !degraded {
					logger.Warn("[Catalog] Chunk embedding failed, retrieval degrades",
						"chunk", chunk.ID, "error", err)
				}
				degraded = true
				mu.Unlock()
				return nil
			}

			if err := storeClient.SaveEmbedding(gCtx, common.Embedding{
				ChunkID:  chunk.ID,
				ModelTag: c.modelTag,
				Vector:   vector,
			}); err != nil {
				return fmt.Errorf("failed to save embedding: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return degraded, err
	}
	return degraded, ctx.Err()
}

// draftCandidates issues one drafting call per (candidate, evidence chunk)
// pair on a worker pool bounded by parallelAiRequests. Retrieval context is
// fetched once per candidate, sequentially, before the pool starts; results
// are accumulated under a mutex and carry their source chunk, so the merger
// can order them deterministically afterwards.
func (c *CatalogClient) draftCandidates(
	ctx context.Context,
	candidates []common.Candidate,
	chunks []common.Chunk,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) ([]common.Draft, []common.Mention, bool, error) {
	chunkByID := make(map[string]common.Chunk, len(chunks))
	for _, chunk := range chunks {
		chunkByID[chunk.ID] = chunk
	}

	type draftJob struct {
		name          string
		chunk         common.Chunk
		contextChunks []common.Chunk
	}

	degraded := false
	var jobs []draftJob
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, degraded, err
		}

		contextChunks, contextDegraded, err := c.retrieveForName(ctx, cand.Name, aiClient, storeClient)
		if err != nil {
			return nil, nil, degraded, err
		}
		degraded = degraded || contextDegraded

		for _, chunkID := range cand.Evidence {
			chunk, ok := chunkByID[chunkID]
			if !ok {
				continue
			}
			jobs = append(jobs, draftJob{
				name:          cand.Name,
				chunk:         chunk,
				contextChunks: withoutChunk(contextChunks, chunkID),
			})
		}
	}

	var (
		mergeMu  sync.Mutex
		drafts   []common.Draft
		mentions []common.Mention
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelAiRequests)

	for _, job := range jobs {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			default:
			}

			draft, drafted, err := c.Draft(gCtx, job.name, job.chunk, job.contextChunks, aiClient)
			if err != nil {
				return err
			}

			mergeMu.Lock()
			drafts = append(drafts, draft)
			mentions = append(mentions, drafted...)
			mergeMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, degraded, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, degraded, err
	}

	logger.Info("[Catalog] Drafting completed",
		"candidates", len(candidates), "drafts", len(drafts), "mentions", len(mentions))

	return drafts, mentions, degraded, nil
}

// withoutChunk returns the chunks with the given id filtered out. The input
// slice is not modified; context slices are shared across drafting jobs.
func withoutChunk(chunks []common.Chunk, id string) []common.Chunk {
	out := make([]common.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == id {
			continue
		}
		out = append(out, chunk)
	}
	return out
}
