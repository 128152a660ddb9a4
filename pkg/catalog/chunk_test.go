package catalog

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/clarifier/pkg/loader"
)

func TestSplitIntoSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: []string(nil),
		},
		{
			name: "single sentence",
			text: "Hello world.",
			want: []string{"Hello world."},
		},
		{
			name: "multiple sentences",
			text: "Hello world. This is a test! How are you?",
			want: []string{
				"Hello world.",
				"This is a test!",
				"How are you?",
			},
		},
		{
			name: "sentences with empty lines",
			text: "First sentence.\n\nSecond sentence.\n\nThird sentence.",
			want: []string{
				"First sentence.",
				"Second sentence.",
				"Third sentence.",
			},
		},
		{
			name: "multi-line sentence",
			text: "This is a long\nsentence that spans\nmultiple lines.",
			want: []string{"This is a long sentence that spans multiple lines."},
		},
		{
			name: "markdown table as single sentence",
			text: "Header1 | Header2\n------- | -------\nValue1  | Value2\nValue3  | Value4",
			want: []string{
				"Header1 | Header2\n------- | -------\nValue1  | Value2\nValue3  | Value4",
			},
		},
		{
			name: "text with table",
			text: "Introduction text.\nHeader1 | Header2\n------- | -------\nValue1  | Value2\nConclusion text.",
			want: []string{
				"Introduction text.",
				"Header1 | Header2\n------- | -------\nValue1  | Value2",
				"Conclusion text.",
			},
		},
		{
			name: "table without delimiter",
			text: "Header1 | Header2\nValue1  | Value2",
			want: []string{
				"Header1 | Header2",
				"Value1  | Value2",
			},
		},
		{
			name: "text with no punctuation",
			text: "Just some text without punctuation\nMore text here",
			want: []string{"Just some text without punctuation More text here"},
		},
		{
			name: "mixed content",
			text: "Start here.\n\n| Col1 | Col2 |\n|------|------|\n| Val1 | Val2 |\n\nEnd here!",
			want: []string{
				"Start here.",
				"| Col1 | Col2 |\n|------|------|\n| Val1 | Val2 |",
				"End here!",
			},
		},
		{
			name: "numeric listing should stay in same sentence",
			text: "Today we discuss three points. 1. First item 2. Second item 3. Third item. Done!",
			want: []string{
				"Today we discuss three points.",
				"1. First item 2. Second item 3. Third item.",
				"Done!",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIntoSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitIntoSentences() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestChunkDocument(t *testing.T) {
	type wantChunk struct {
		sequence int
		text     string
	}

	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      []wantChunk
	}{
		{
			name:      "single sentence under limit",
			text:      "Hello world.",
			maxTokens: 10,
			want: []wantChunk{
				{sequence: 0, text: "Hello world."},
			},
		},
		{
			name:      "multiple sentences under limit",
			text:      "First sentence. Second sentence.",
			maxTokens: 20,
			want: []wantChunk{
				{sequence: 0, text: "First sentence. Second sentence."},
			},
		},
		{
			name:      "sentences split by token limit",
			text:      "First sentence. Second sentence. Third sentence.",
			maxTokens: 1,
			want: []wantChunk{
				{sequence: 0, text: "First sentence."},
				{sequence: 1, text: "Second sentence."},
				{sequence: 2, text: "Third sentence."},
			},
		},
		{
			name:      "table as single chunk",
			text:      "| Header1 | Header2 |\n|---------|---------|\n| Value1  | Value2  |",
			maxTokens: 10,
			want: []wantChunk{
				{sequence: 0, text: "| Header1 | Header2 |\n|---------|---------|\n| Value1  | Value2  |"},
			},
		},
		{
			name:      "empty text",
			text:      "",
			maxTokens: 10,
			want:      []wantChunk{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loader.NewTextDocument(loader.NewDocumentParams{
				ID:        "doc-a",
				Path:      "test.txt",
				MaxTokens: tt.maxTokens,
				Loader:    &textLoader{text: tt.text},
			})

			got, err := ChunkDocument(context.Background(), doc, "cl100k_base", 0)
			if err != nil {
				t.Fatalf("ChunkDocument() error = %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("ChunkDocument() returned %d chunks, want %d", len(got), len(tt.want))
			}

			for i, chunk := range got {
				expected := tt.want[i]

				if chunk.ID == "" {
					t.Errorf("chunk[%d].ID is empty", i)
				}
				if chunk.DocumentID != "doc-a" {
					t.Errorf("chunk[%d].DocumentID = %s, want doc-a", i, chunk.DocumentID)
				}
				if chunk.Sequence != expected.sequence {
					t.Errorf("chunk[%d].Sequence = %d, want %d", i, chunk.Sequence, expected.sequence)
				}
				if chunk.TokenCount <= 0 {
					t.Errorf("chunk[%d].TokenCount = %d, want > 0", i, chunk.TokenCount)
				}

				gotText := strings.TrimSpace(chunk.Text)
				wantText := strings.TrimSpace(expected.text)
				if gotText != wantText {
					t.Errorf("chunk[%d].Text = %q, want %q", i, gotText, wantText)
				}
			}
		})
	}
}

func TestIsCSVHeader(t *testing.T) {
	tests := []struct {
		name string
		rows []string
		want bool
	}{
		{
			name: "single row returns false",
			rows: []string{"a,b,c"},
			want: false,
		},
		{
			name: "header with text, data with numbers",
			rows: []string{"Name,Age,City", "John,25,NYC", "Jane,30,LA"},
			want: true,
		},
		{
			name: "all numeric data",
			rows: []string{"1,2,3", "4,5,6", "7,8,9"},
			want: true,
		},
		{
			name: "common header patterns",
			rows: []string{"ID,Name,Email", "1,John,john@test.com", "2,Jane,jane@test.com"},
			want: true,
		},
		{
			name: "first row no numbers, data has numbers",
			rows: []string{"Product,Price,Quantity", "Apple,1.99,100", "Banana,0.99,200"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isCSVHeader(tt.rows)
			if got != tt.want {
				t.Errorf("isCSVHeader() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkCSVText(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		maxTokens  int
		wantChunks int
		wantHeader string
	}{
		{
			name:       "small CSV fits in one chunk",
			text:       "Name,Age\nJohn,25\nJane,30",
			maxTokens:  100,
			wantChunks: 1,
			wantHeader: "Name,Age",
		},
		{
			name:       "CSV splits into multiple chunks with header preserved",
			text:       "Name,Age\nJohn,25\nJane,30\nBob,35\nAlice,28",
			maxTokens:  5,
			wantChunks: 4,
			wantHeader: "Name,Age",
		},
		{
			name:       "single row CSV treated as data",
			text:       "John,25,NYC",
			maxTokens:  100,
			wantChunks: 1,
			wantHeader: "",
		},
		{
			name:       "empty text",
			text:       "",
			maxTokens:  100,
			wantChunks: 0,
			wantHeader: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chunkCSVText(tt.text, "doc-csv", "cl100k_base", tt.maxTokens)
			if err != nil {
				t.Fatalf("chunkCSVText() error = %v", err)
			}

			if len(got) != tt.wantChunks {
				t.Errorf("chunkCSVText() returned %d chunks, want %d", len(got), tt.wantChunks)
			}

			if tt.wantHeader != "" && len(got) > 1 {
				for i, chunk := range got {
					if !strings.HasPrefix(chunk.Text, tt.wantHeader) {
						t.Errorf("chunk[%d] should start with header %q, got %q", i, tt.wantHeader, chunk.Text[:min(len(chunk.Text), 20)])
					}
				}
			}

			for i, chunk := range got {
				if chunk.Sequence != i {
					t.Errorf("chunk[%d].Sequence = %d, want %d", i, chunk.Sequence, i)
				}
			}
		})
	}
}

func TestChunkDocumentsCorpusOrder(t *testing.T) {
	docs := []loader.Document{
		loader.NewTextDocument(loader.NewDocumentParams{
			ID:        "doc-a",
			Path:      "a.txt",
			MaxTokens: 1,
			Loader:    &textLoader{text: "First sentence. Second sentence."},
		}),
		loader.NewTextDocument(loader.NewDocumentParams{
			ID:        "doc-b",
			Path:      "b.txt",
			MaxTokens: 1,
			Loader:    &textLoader{text: "Third sentence."},
		}),
	}

	got, err := ChunkDocuments(context.Background(), docs, "cl100k_base", 0)
	if err != nil {
		t.Fatalf("ChunkDocuments() error = %v", err)
	}

	wantOrder := []struct {
		documentID string
		sequence   int
	}{
		{"doc-a", 0},
		{"doc-a", 1},
		{"doc-b", 0},
	}

	if len(got) != len(wantOrder) {
		t.Fatalf("ChunkDocuments() returned %d chunks, want %d", len(got), len(wantOrder))
	}
	for i, chunk := range got {
		if chunk.DocumentID != wantOrder[i].documentID || chunk.Sequence != wantOrder[i].sequence {
			t.Errorf("chunk[%d] = (%s, %d), want (%s, %d)",
				i, chunk.DocumentID, chunk.Sequence, wantOrder[i].documentID, wantOrder[i].sequence)
		}
	}
}

type textLoader struct {
	text string
}

func (m *textLoader) GetDocumentText(_ context.Context, _ loader.Document) ([]byte, error) {
	return []byte(m.text), nil
}
