package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

// refineOutcome carries the pipeline sets as grown by refinement, plus how
// many targets were refined and whether retrieval degraded along the way.
type refineOutcome struct {
	candidates []common.Candidate
	drafts     []common.Draft
	mentions   []common.Mention
	refined    int
	degraded   bool
}

// refine runs up to refineDepth bounded follow-up rounds over the merged
// result. Each round re-merges and re-resolves the accumulated sets, then
// targets two kinds of gaps: orphan edge endpoints that enough corpus
// context exists for, which are drafted as new candidates, and merged
// modules left without any attributes, which are re-asked against retrieved
// context. A key is processed at most once across all rounds, so refinement
// always terminates. Rounds stop early when a pass adds nothing.
func (c *CatalogClient) refine(
	ctx context.Context,
	candidates []common.Candidate,
	drafts []common.Draft,
	mentions []common.Mention,
	chunks []common.Chunk,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) (refineOutcome, error) {
	out := refineOutcome{candidates: candidates, drafts: drafts, mentions: mentions}
	processed := make(map[string]struct{})

	for round := 0; round < c.refineDepth; round++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		modules, _, err := c.Merge(out.drafts, out.candidates, chunks)
		if err != nil {
			return out, err
		}
		_, orphans, _ := c.Resolve(modules, out.mentions, chunks)

		known := make(map[string]struct{})
		for _, m := range modules {
			known[c.table.Key(m.Name)] = struct{}{}
			for _, alias := range m.Aliases {
				known[c.table.Key(alias)] = struct{}{}
			}
		}

		added := 0

		for _, orphan := range orphans {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			if c.table.Key(orphan.SourceName) == c.table.Key(orphan.TargetName) {
				continue
			}
			for _, name := range []string{orphan.SourceName, orphan.TargetName} {
				key := c.table.Key(name)
				if key == "" {
					continue
				}
				if _, ok := known[key]; ok {
					continue
				}
				if _, ok := processed[key]; ok {
					continue
				}
				processed[key] = struct{}{}

				retrieved, degraded, err := c.retrieveForName(ctx, name, aiClient, storeClient)
				if err != nil {
					return out, err
				}
				if degraded {
					out.degraded = true
					continue
				}
				if len(retrieved) == 0 || contextChars(retrieved) < c.refineMinContext {
					continue
				}

				home := retrieved[0]
				draft, drafted, err := c.Draft(ctx, name, home, retrieved[1:], aiClient)
				if err != nil {
					return out, err
				}

				out.candidates = append(out.candidates, common.Candidate{
					Name:      name,
					Variants:  []string{name},
					Evidence:  []string{home.ID},
					FirstSeen: len(out.candidates),
				})
				out.drafts = append(out.drafts, draft)
				out.mentions = append(out.mentions, drafted...)
				out.refined++
				added++
			}
		}

		for _, m := range modules {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			if len(m.Fields) != 0 {
				continue
			}
			key := c.table.Key(m.Name)
			if _, ok := processed[key]; ok {
				continue
			}
			processed[key] = struct{}{}

			retrieved, degraded, err := c.retrieveForName(ctx, m.Name, aiClient, storeClient)
			if err != nil {
				return out, err
			}
			if degraded {
				out.degraded = true
				continue
			}
			if len(retrieved) == 0 || contextChars(retrieved) < c.refineMinContext {
				continue
			}

			draft, drafted, err := c.refineModule(ctx, m, retrieved, aiClient)
			if err != nil {
				return out, err
			}
			if draft == nil {
				continue
			}
			out.drafts = append(out.drafts, *draft)
			out.mentions = append(out.mentions, drafted...)
			out.refined++
			added++
		}

		logger.Info("[Catalog] Refinement round completed", "round", round+1, "refined", added)

		if added == 0 {
			break
		}
	}

	return out, nil
}

// retrieveForName fetches corpus context for a bare module name. An
// unavailable embedding backend degrades to an empty result instead of
// failing the round.
func (c *CatalogClient) retrieveForName(
	ctx context.Context,
	name string,
	aiClient ai.CatalogAIClient,
	storeClient store.CatalogStorage,
) ([]common.Chunk, bool, error) {
	retrieved, err := c.Retrieve(ctx, common.RetrievalQuery{Text: name}, aiClient, storeClient)
	if err != nil {
		if errors.Is(err, ai.ErrEmbeddingUnavailable) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return retrieved, false, nil
}

// refineModule re-asks for attributes of a module that merged without any,
// grounded on retrieved context. A failed call or an empty answer keeps the
// record as is.
func (c *CatalogClient) refineModule(
	ctx context.Context,
	module *common.Module,
	retrieved []common.Chunk,
	aiClient ai.CatalogAIClient,
) (*common.Draft, []common.Mention, error) {
	prompt := fmt.Sprintf(
		ai.RefinePrompt,
		module.Name,
		renderModuleRecord(module),
		renderContext(retrieved),
	)

	var res draftResponse
	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		res = draftResponse{}
		return aiClient.GenerateCompletionWithFormat(
			ctx,
			"refine_module_attributes",
			"Extend a merged module record with attributes the retrieved context supports.",
			prompt,
			&res,
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		logger.Warn("[Catalog] Refinement call failed, record kept as is",
			"module", module.Name, "error", err)
		return nil, nil, nil
	}

	fields := res.Fields.toMap()
	mentions := mentionsFrom(module.Name, retrieved[0].ID, res.Dependencies)
	if len(fields) == 0 && len(mentions) == 0 {
		return nil, nil, nil
	}

	draft := &common.Draft{
		CandidateName: module.Name,
		Fields:        fields,
		SourceChunkID: retrieved[0].ID,
		Confidence:    clampConfidence(res.Confidence),
	}
	return draft, mentions, nil
}

// renderModuleRecord formats a merged module for prompt inclusion.
func renderModuleRecord(module *common.Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", module.Name)
	if len(module.Aliases) > 1 {
		fmt.Fprintf(&sb, "Aliases: %s\n", strings.Join(module.Aliases, ", "))
	}
	if len(module.Fields) == 0 {
		sb.WriteString("Attributes: (none)\n")
		return sb.String()
	}
	names := make([]string, 0, len(module.Fields))
	for name := range module.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\n", name, strings.Join(module.Fields[name], " | "))
	}
	return sb.String()
}

func contextChars(chunks []common.Chunk) int {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk.Text)
	}
	return total
}
