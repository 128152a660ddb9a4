package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

func TestSaveChunks_DuplicateHandling(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	chunk := common.Chunk{ID: "c1", DocumentID: "doc", Sequence: 0, Text: "UserService handles login.", TokenCount: 5}
	if err := s.SaveChunks(ctx, []common.Chunk{chunk}); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}

	// Identical re-save is idempotent.
	if err := s.SaveChunks(ctx, []common.Chunk{chunk}); err != nil {
		t.Fatalf("SaveChunks() identical re-save error = %v", err)
	}

	// Same id with different content breaks immutability.
	altered := chunk
	altered.Text = "something else"
	err := s.SaveChunks(ctx, []common.Chunk{altered})
	if !common.IsInvariantViolation(err) {
		t.Fatalf("SaveChunks() error = %v, want invariant violation", err)
	}

	got, err := s.GetChunk(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	if got.Text != chunk.Text {
		t.Errorf("chunk text mutated to %q", got.Text)
	}
}

func TestGetChunk_NotFound(t *testing.T) {
	s := NewCatalogMemStorage()
	if _, err := s.GetChunk(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetChunk() error = %v, want ErrNotFound", err)
	}
}

func TestListChunks_CorpusOrder(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	chunks := []common.Chunk{
		{ID: "b2", DocumentID: "doc-b", Sequence: 2, Text: "late"},
		{ID: "a1", DocumentID: "doc-a", Sequence: 1, Text: "second"},
		{ID: "b0", DocumentID: "doc-b", Sequence: 0, Text: "third"},
		{ID: "a0", DocumentID: "doc-a", Sequence: 0, Text: "first"},
	}
	if err := s.SaveChunks(ctx, chunks); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}

	got, err := s.ListChunks(ctx)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}

	wantIDs := []string{"a0", "a1", "b0", "b2"}
	gotIDs := make([]string, 0, len(got))
	for _, c := range got {
		gotIDs = append(gotIDs, c.ID)
	}
	if !reflect.DeepEqual(gotIDs, wantIDs) {
		t.Errorf("ListChunks() order = %v, want %v", gotIDs, wantIDs)
	}
}

func TestSaveEmbedding_DimensionPinned(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []common.Chunk{
		{ID: "c1", DocumentID: "doc", Sequence: 0, Text: "a"},
		{ID: "c2", DocumentID: "doc", Sequence: 1, Text: "b"},
	}); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}

	if err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: "c1", ModelTag: "m1", Vector: []float32{1, 0, 0}}); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: "c2", ModelTag: "m1", Vector: []float32{1, 0}})
	if !common.IsInvariantViolation(err) {
		t.Fatalf("SaveEmbedding() dimension mismatch error = %v, want invariant violation", err)
	}

	// A different model tag may use a different dimension.
	if err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: "c2", ModelTag: "m2", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("SaveEmbedding() second tag error = %v", err)
	}
}

func TestSaveEmbedding_UnknownChunk(t *testing.T) {
	s := NewCatalogMemStorage()
	err := s.SaveEmbedding(context.Background(), common.Embedding{ChunkID: "ghost", ModelTag: "m1", Vector: []float32{1}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SaveEmbedding() error = %v, want ErrNotFound", err)
	}
}

func TestHasEmbedding(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []common.Chunk{{ID: "c1", DocumentID: "doc", Sequence: 0, Text: "a"}}); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}
	if err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: "c1", ModelTag: "m1", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	tests := []struct {
		name     string
		chunkID  string
		modelTag string
		want     bool
	}{
		{name: "present", chunkID: "c1", modelTag: "m1", want: true},
		{name: "other tag", chunkID: "c1", modelTag: "m2", want: false},
		{name: "other chunk", chunkID: "c2", modelTag: "m1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasEmbedding(ctx, tt.chunkID, tt.modelTag)
			if err != nil {
				t.Fatalf("HasEmbedding() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasEmbedding() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchSimilar_RanksByCosine(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []common.Chunk{
		{ID: "exact", DocumentID: "doc", Sequence: 0, Text: "a"},
		{ID: "close", DocumentID: "doc", Sequence: 1, Text: "b"},
		{ID: "orthogonal", DocumentID: "doc", Sequence: 2, Text: "c"},
	}); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}

	vectors := map[string][]float32{
		"exact":      {1, 0},
		"close":      {1, 1},
		"orthogonal": {0, 1},
	}
	for id, vec := range vectors {
		if err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: id, ModelTag: "m1", Vector: vec}); err != nil {
			t.Fatalf("SaveEmbedding(%s) error = %v", id, err)
		}
	}

	hits, err := s.SearchSimilar(ctx, []float32{1, 0}, "m1", 2)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("SearchSimilar() returned %d hits, want 2", len(hits))
	}
	if hits[0].ChunkID != "exact" || hits[1].ChunkID != "close" {
		t.Errorf("SearchSimilar() order = [%s %s], want [exact close]", hits[0].ChunkID, hits[1].ChunkID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestSearchSimilar_TieBreakBySequence(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []common.Chunk{
		{ID: "later", DocumentID: "doc", Sequence: 5, Text: "a"},
		{ID: "earlier", DocumentID: "doc", Sequence: 2, Text: "b"},
	}); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}

	// Identical vectors: scores tie exactly.
	for _, id := range []string{"later", "earlier"} {
		if err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: id, ModelTag: "m1", Vector: []float32{3, 4}}); err != nil {
			t.Fatalf("SaveEmbedding(%s) error = %v", id, err)
		}
	}

	hits, err := s.SearchSimilar(ctx, []float32{3, 4}, "m1", 2)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("SearchSimilar() returned %d hits, want 2", len(hits))
	}
	if hits[0].ChunkID != "earlier" {
		t.Errorf("tie broke to %q, want the smaller sequence index first", hits[0].ChunkID)
	}
}

func TestSearchSimilar_QueryDimensionMismatch(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	if err := s.SaveChunks(ctx, []common.Chunk{{ID: "c1", DocumentID: "doc", Sequence: 0, Text: "a"}}); err != nil {
		t.Fatalf("SaveChunks() error = %v", err)
	}
	if err := s.SaveEmbedding(ctx, common.Embedding{ChunkID: "c1", ModelTag: "m1", Vector: []float32{1, 0, 0}}); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	_, err := s.SearchSimilar(ctx, []float32{1, 0}, "m1", 1)
	if !common.IsInvariantViolation(err) {
		t.Fatalf("SearchSimilar() error = %v, want invariant violation", err)
	}
}

func TestIndex_RoundTripIsolatesCaller(t *testing.T) {
	s := NewCatalogMemStorage()
	ctx := context.Background()

	idx := &common.SummaryIndex{
		Modules: map[string]*common.Module{
			"m1": {ID: "m1", Name: "UserService", Fields: map[string][]string{"purpose": {"login"}}},
		},
		Graph: common.Graph{ModuleIDs: []string{"m1"}},
	}
	if err := s.SaveIndex(ctx, "cat-1", idx); err != nil {
		t.Fatalf("SaveIndex() error = %v", err)
	}

	// Mutating the caller's copy must not affect the stored index.
	idx.Modules["m1"].Name = "mutated"

	got, err := s.GetIndex(ctx, "cat-1")
	if err != nil {
		t.Fatalf("GetIndex() error = %v", err)
	}
	if got.Modules["m1"].Name != "UserService" {
		t.Errorf("stored index aliased caller memory: name = %q", got.Modules["m1"].Name)
	}

	ids, err := s.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("ListIndexes() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"cat-1"}) {
		t.Errorf("ListIndexes() = %v, want [cat-1]", ids)
	}

	if err := s.DeleteIndex(ctx, "cat-1"); err != nil {
		t.Fatalf("DeleteIndex() error = %v", err)
	}
	if _, err := s.GetIndex(ctx, "cat-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetIndex() after delete error = %v, want ErrNotFound", err)
	}
}
