package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
)

type draftFields struct {
	Purpose          string `json:"purpose,omitempty" jsonschema_description:"One sentence on what the module is for"`
	Kind             string `json:"kind,omitempty" jsonschema_description:"The sort of component: service, library, database, queue, external system"`
	Responsibilities string `json:"responsibilities,omitempty" jsonschema_description:"What the module does, compact prose"`
	Interfaces       string `json:"interfaces,omitempty" jsonschema_description:"How other modules interact with this one"`
}

type draftDependency struct {
	Target string `json:"target" jsonschema_description:"Name of the module this module depends on, as written in the text"`
	Kind   string `json:"kind" jsonschema_description:"Dependency kind: calls, depends_on, or extends"`
}

type draftResponse struct {
	Fields       draftFields       `json:"fields" jsonschema_description:"Attributes drafted for the module"`
	Dependencies []draftDependency `json:"dependencies" jsonschema_description:"Directed dependencies from this module to other named modules"`
	Confidence   float64           `json:"confidence" jsonschema_description:"How directly the chunk supports the drafted attributes, 0.0 to 1.0"`
}

func (f draftFields) toMap() map[string]string {
	out := make(map[string]string)
	if v := strings.TrimSpace(f.Purpose); v != "" {
		out["purpose"] = v
	}
	if v := strings.TrimSpace(f.Kind); v != "" {
		out["kind"] = v
	}
	if v := strings.TrimSpace(f.Responsibilities); v != "" {
		out["responsibilities"] = v
	}
	if v := strings.TrimSpace(f.Interfaces); v != "" {
		out["interfaces"] = v
	}
	return out
}

// Draft issues exactly one drafting call for a (candidate, chunk) pair and
// returns the attribute draft plus the dependency mentions the chunk states.
// Transient failures are retried with backoff; a call that stays failed or
// returns unparseable output degrades to a zero-confidence draft with empty
// fields instead of failing the run. Only context cancellation propagates as
// an error.
func (c *CatalogClient) Draft(
	ctx context.Context,
	candidateName string,
	chunk common.Chunk,
	contextChunks []common.Chunk,
	aiClient ai.CatalogAIClient,
) (common.Draft, []common.Mention, error) {
	prompt := fmt.Sprintf(
		ai.DraftPrompt,
		candidateName,
		chunk.Text,
		renderContext(contextChunks),
	)

	var res draftResponse
	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		res = draftResponse{}
		return aiClient.GenerateCompletionWithFormat(
			ctx,
			"draft_module_attributes",
			"Draft structured attributes and dependencies for one module from a documentation chunk.",
			prompt,
			&res,
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return common.Draft{}, nil, ctxErr
		}
		logger.Warn("[Catalog] Draft degraded to zero confidence",
			"module", candidateName, "chunk", chunk.ID, "error", err)
		return common.Draft{
			CandidateName: candidateName,
			SourceChunkID: chunk.ID,
			Confidence:    0,
		}, nil, nil
	}

	draft := common.Draft{
		CandidateName: candidateName,
		Fields:        res.Fields.toMap(),
		SourceChunkID: chunk.ID,
		Confidence:    clampConfidence(res.Confidence),
	}

	return draft, mentionsFrom(candidateName, chunk.ID, res.Dependencies), nil
}

// mentionsFrom converts raw dependency claims into mentions attributed to
// the named source module and chunk.
func mentionsFrom(sourceName string, chunkID string, deps []draftDependency) []common.Mention {
	mentions := make([]common.Mention, 0, len(deps))
	for _, dep := range deps {
		target := strings.TrimSpace(dep.Target)
		if target == "" {
			continue
		}
		mentions = append(mentions, common.Mention{
			SourceName: sourceName,
			TargetName: target,
			Kind:       common.NormalizeEdgeKind(dep.Kind),
			ChunkID:    chunkID,
		})
	}
	return mentions
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
