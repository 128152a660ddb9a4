package common

import (
	"strings"
	"time"
)

// Chunk represents a bounded span of normalized document text with a stable
// identifier. Chunks are the smallest unit of evidence in the catalog: every
// discovered module and dependency edge points back at the chunks it was
// seen in.
//
// Chunks are immutable once created. Sequence is the position of the chunk
// within its source document; together with DocumentID it defines the corpus
// order used for deterministic processing.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Sequence   int    `json:"sequence"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Embedding holds the vector computed for one chunk under one embedding
// model. Vector length must be constant across an index; mixing models is
// only valid when the ModelTag differs.
type Embedding struct {
	ChunkID  string    `json:"chunk_id"`
	ModelTag string    `json:"model_tag"`
	Vector   []float32 `json:"vector"`
}

// RetrievalQuery describes one similarity lookup: free text to embed, the
// maximum number of chunks to return, and a token budget the combined result
// must fit into. Queries are ephemeral and never persisted.
type RetrievalQuery struct {
	Text        string
	K           int
	TokenBudget int
}

// Candidate is a provisionally named module produced by discovery, before
// cross-chunk merging. Variants records every observed spelling in first-seen
// order (the first entry is the candidate's provisional name); Evidence lists
// supporting chunk ids in first-seen order.
type Candidate struct {
	Name      string   `json:"name"`
	Variants  []string `json:"variants"`
	Evidence  []string `json:"evidence"`
	FirstSeen int      `json:"first_seen"`
}

// Draft carries the attributes proposed for one (candidate, chunk) pair by a
// single inference call. Drafts are immutable; conflicting drafts for the
// same candidate are reconciled by the merger, never edited in place.
//
// A draft with Confidence 0 and no fields marks a contained failure: the
// call was malformed or exhausted its retries, and the run continued.
type Draft struct {
	CandidateName string            `json:"candidate_name"`
	Fields        map[string]string `json:"fields"`
	SourceChunkID string            `json:"source_chunk_id"`
	Confidence    float64           `json:"confidence"`
}

// EdgeKind classifies a dependency edge between two modules.
type EdgeKind string

const (
	EdgeKindCalls     EdgeKind = "calls"
	EdgeKindDependsOn EdgeKind = "depends_on"
	EdgeKindExtends   EdgeKind = "extends"
)

// NormalizeEdgeKind folds free-form kind spellings from inference output onto
// the EdgeKind enum. Unknown kinds fold to EdgeKindDependsOn, the weakest
// claim.
func NormalizeEdgeKind(s string) EdgeKind {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "-", "_"), " ", "_"))) {
	case "calls", "call", "invokes", "invoke":
		return EdgeKindCalls
	case "extends", "extend", "inherits", "inherit", "implements":
		return EdgeKindExtends
	default:
		return EdgeKindDependsOn
	}
}

// Mention is one raw dependency sighting extracted alongside attribute
// drafting: module names as written in the text, not yet resolved to
// canonical ids.
type Mention struct {
	SourceName string   `json:"source_name"`
	TargetName string   `json:"target_name"`
	Kind       EdgeKind `json:"kind"`
	ChunkID    string   `json:"chunk_id"`
}

// Module is the canonical, deduplicated record of one logical component
// across all evidence. The id is assigned at first merge and stable for the
// run. Fields maps a field name to every distinct value observed for it in
// first-seen order; a field with more than one value is contested and listed
// in the build metadata. Aliases collects every name variant that merged
// into this module; Evidence is ordered by first chunk sequence.
type Module struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Aliases  []string            `json:"aliases"`
	Fields   map[string][]string `json:"fields"`
	Evidence []string            `json:"evidence"`
}

// Edge is a directed dependency between two canonical modules. At most one
// edge exists per (From, To, Kind) triple; repeated sightings union their
// evidence.
type Edge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Kind     EdgeKind `json:"kind"`
	Evidence []string `json:"evidence"`
}

// Graph is the dependency graph over canonical modules: node ids plus the
// deduplicated edges. Every edge endpoint references an id in ModuleIDs.
type Graph struct {
	ModuleIDs []string `json:"module_ids"`
	Edges     []Edge   `json:"edges"`
}

// OrphanEdge records a dependency mention whose endpoint could not be
// resolved to any known module. Orphans are data-quality notes, not errors.
type OrphanEdge struct {
	SourceName string   `json:"source_name"`
	TargetName string   `json:"target_name"`
	Kind       EdgeKind `json:"kind"`
	ChunkID    string   `json:"chunk_id"`
}

// ContestedField identifies a module field for which conflicting values were
// observed and all retained.
type ContestedField struct {
	ModuleID string `json:"module_id"`
	Field    string `json:"field"`
}

// BuildMeta is the run-level report attached to a SummaryIndex: counts,
// degradations, contested fields, orphan edges, and dependency cycles. A run
// that hit recoverable problems still completes; this is where those
// problems are surfaced.
type BuildMeta struct {
	RunID              string           `json:"run_id"`
	BuiltAt            time.Time        `json:"built_at"`
	ModelTag           string           `json:"model_tag,omitempty"`
	ChunkCount         int              `json:"chunk_count"`
	DraftCount         int              `json:"draft_count"`
	FailedDrafts       int              `json:"failed_drafts"`
	RetrievalDegraded  bool             `json:"retrieval_degraded"`
	Contested          []ContestedField `json:"contested,omitempty"`
	Orphans            []OrphanEdge     `json:"orphans,omitempty"`
	Cycles             [][]string       `json:"cycles,omitempty"`
	RefinedModuleCount int              `json:"refined_module_count,omitempty"`
	DurationMs         int64            `json:"duration_ms"`
}

// SummaryIndex is the single externally visible artifact of a pipeline run:
// the canonical modules by id, the dependency graph over them, and the build
// metadata.
type SummaryIndex struct {
	Modules map[string]*Module `json:"modules"`
	Graph   Graph              `json:"graph"`
	Meta    BuildMeta          `json:"meta"`
}
