package catalog

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
)

func newTestClient(t *testing.T, params NewCatalogClientParams) *CatalogClient {
	t.Helper()
	client, err := NewCatalogClient(params)
	if err != nil {
		t.Fatalf("NewCatalogClient() error = %v", err)
	}
	return client
}

func mergeTestChunks() []common.Chunk {
	return []common.Chunk{
		{ID: "c1", DocumentID: "doc", Sequence: 0, Text: "UserService handles login.", TokenCount: 6},
		{ID: "c2", DocumentID: "doc", Sequence: 1, Text: "The UserServices store sessions.", TokenCount: 6},
		{ID: "c3", DocumentID: "doc", Sequence: 2, Text: "AuthModule calls UserService.", TokenCount: 5},
	}
}

func TestMergeCollectsAliasesAndEvidence(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	chunks := mergeTestChunks()

	candidates := []common.Candidate{{
		Name:      "UserService",
		Variants:  []string{"UserService", "UserServices"},
		Evidence:  []string{"c1", "c2"},
		FirstSeen: 0,
	}}
	drafts := []common.Draft{
		{CandidateName: "UserServices", Fields: map[string]string{"kind": "service"}, SourceChunkID: "c2", Confidence: 0.8},
		{CandidateName: "UserService", Fields: map[string]string{"kind": "Service"}, SourceChunkID: "c1", Confidence: 0.9},
	}

	modules, contested, err := client.Merge(drafts, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("Merge() returned %d modules, want 1", len(modules))
	}
	if len(contested) != 0 {
		t.Fatalf("Merge() reported %d contested fields, want 0", len(contested))
	}

	m := modules[0]
	if m.ID == "" {
		t.Error("module id is empty")
	}
	if m.Name != "UserService" {
		t.Errorf("module name = %q, want %q", m.Name, "UserService")
	}
	if want := []string{"UserService", "UserServices"}; !reflect.DeepEqual(m.Aliases, want) {
		t.Errorf("aliases = %v, want %v", m.Aliases, want)
	}
	if want := []string{"c1", "c2"}; !reflect.DeepEqual(m.Evidence, want) {
		t.Errorf("evidence = %v, want %v", m.Evidence, want)
	}
	// "service" and "Service" fold to the same value; the corpus-first
	// spelling wins.
	if want := []string{"Service"}; !reflect.DeepEqual(m.Fields["kind"], want) {
		t.Errorf("kind = %v, want %v", m.Fields["kind"], want)
	}
}

func TestMergeKeepsContestedValues(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	chunks := mergeTestChunks()

	candidates := []common.Candidate{{
		Name:      "UserService",
		Variants:  []string{"UserService"},
		Evidence:  []string{"c1", "c2"},
		FirstSeen: 0,
	}}
	drafts := []common.Draft{
		{CandidateName: "UserService", Fields: map[string]string{"purpose": "Stores sessions."}, SourceChunkID: "c2", Confidence: 0.7},
		{CandidateName: "UserService", Fields: map[string]string{"purpose": "Handles login."}, SourceChunkID: "c1", Confidence: 0.9},
	}

	modules, contested, err := client.Merge(drafts, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("Merge() returned %d modules, want 1", len(modules))
	}

	m := modules[0]
	if want := []string{"Handles login.", "Stores sessions."}; !reflect.DeepEqual(m.Fields["purpose"], want) {
		t.Errorf("purpose = %v, want %v", m.Fields["purpose"], want)
	}
	want := []common.ContestedField{{ModuleID: m.ID, Field: "purpose"}}
	if !reflect.DeepEqual(contested, want) {
		t.Errorf("contested = %v, want %v", contested, want)
	}
}

func TestMergeOrderInvariance(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	chunks := mergeTestChunks()

	candidates := []common.Candidate{
		{Name: "UserService", Variants: []string{"UserService"}, Evidence: []string{"c1", "c3"}, FirstSeen: 0},
		{Name: "AuthModule", Variants: []string{"AuthModule"}, Evidence: []string{"c3"}, FirstSeen: 1},
	}
	drafts := []common.Draft{
		{CandidateName: "UserService", Fields: map[string]string{"purpose": "Handles login."}, SourceChunkID: "c1", Confidence: 0.9},
		{CandidateName: "UserService", Fields: map[string]string{"purpose": "Serves user data."}, SourceChunkID: "c3", Confidence: 0.6},
		{CandidateName: "AuthModule", Fields: map[string]string{"kind": "service"}, SourceChunkID: "c3", Confidence: 0.8},
	}

	reversed := make([]common.Draft, len(drafts))
	for i, d := range drafts {
		reversed[len(drafts)-1-i] = d
	}

	forward, forwardContested, err := client.Merge(drafts, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge(forward) error = %v", err)
	}
	backward, backwardContested, err := client.Merge(reversed, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge(reversed) error = %v", err)
	}

	if !reflect.DeepEqual(stripModuleIDs(forward), stripModuleIDs(backward)) {
		t.Errorf("merge depends on draft order:\nforward  = %+v\nbackward = %+v",
			stripModuleIDs(forward), stripModuleIDs(backward))
	}
	if !reflect.DeepEqual(contestedFieldNames(forward, forwardContested), contestedFieldNames(backward, backwardContested)) {
		t.Errorf("contested fields depend on draft order: forward = %v, backward = %v",
			contestedFieldNames(forward, forwardContested), contestedFieldNames(backward, backwardContested))
	}
}

func TestMergeCandidateWithoutDrafts(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	chunks := mergeTestChunks()

	candidates := []common.Candidate{{
		Name:      "Database",
		Variants:  []string{"Database"},
		Evidence:  []string{"c3"},
		FirstSeen: 0,
	}}

	modules, contested, err := client.Merge(nil, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("Merge() returned %d modules, want 1", len(modules))
	}
	if len(contested) != 0 {
		t.Fatalf("Merge() reported %d contested fields, want 0", len(contested))
	}

	m := modules[0]
	if m.Name != "Database" {
		t.Errorf("module name = %q, want %q", m.Name, "Database")
	}
	if len(m.Fields) != 0 {
		t.Errorf("fields = %v, want none", m.Fields)
	}
	if want := []string{"c3"}; !reflect.DeepEqual(m.Evidence, want) {
		t.Errorf("evidence = %v, want %v", m.Evidence, want)
	}
}

func TestMergeZeroConfidenceDraftKeepsEvidence(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	chunks := mergeTestChunks()

	candidates := []common.Candidate{{
		Name:      "UserService",
		Variants:  []string{"UserService"},
		Evidence:  []string{"c1"},
		FirstSeen: 0,
	}}
	drafts := []common.Draft{
		{CandidateName: "UserService", SourceChunkID: "c3", Confidence: 0},
	}

	modules, _, err := client.Merge(drafts, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("Merge() returned %d modules, want 1", len(modules))
	}

	m := modules[0]
	if len(m.Fields) != 0 {
		t.Errorf("fields = %v, want none", m.Fields)
	}
	if want := []string{"c1", "c3"}; !reflect.DeepEqual(m.Evidence, want) {
		t.Errorf("evidence = %v, want %v", m.Evidence, want)
	}
}

func TestMergeEvidenceFollowsCorpusOrder(t *testing.T) {
	client := newTestClient(t, NewCatalogClientParams{})
	chunks := mergeTestChunks()

	candidates := []common.Candidate{{
		Name:      "UserService",
		Variants:  []string{"UserService"},
		Evidence:  []string{"c3", "c1"},
		FirstSeen: 0,
	}}

	modules, _, err := client.Merge(nil, candidates, chunks)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if want := []string{"c1", "c3"}; !reflect.DeepEqual(modules[0].Evidence, want) {
		t.Errorf("evidence = %v, want %v", modules[0].Evidence, want)
	}
}

// stripModuleIDs copies modules with ids cleared so runs can be compared
// structurally.
func stripModuleIDs(modules []*common.Module) []common.Module {
	out := make([]common.Module, len(modules))
	for i, m := range modules {
		cp := *m
		cp.ID = ""
		out[i] = cp
	}
	return out
}

// contestedFieldNames maps contested entries to (module name, field) pairs
// so they can be compared across runs with different ids.
func contestedFieldNames(modules []*common.Module, contested []common.ContestedField) [][2]string {
	nameByID := make(map[string]string, len(modules))
	for _, m := range modules {
		nameByID[m.ID] = m.Name
	}
	out := make([][2]string, 0, len(contested))
	for _, cf := range contested {
		out = append(out, [2]string{nameByID[cf.ModuleID], cf.Field})
	}
	return out
}
