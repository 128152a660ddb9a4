package loader

import (
	"context"
)

type DocumentType string

const (
	DocumentTypeText DocumentType = "text"
	DocumentTypeCSV  DocumentType = "csv"
)

// Document represents one input source of corpus text. It carries metadata
// such as the source path and the per-document chunk token limit.
//
// The actual content is retrieved via the associated DocumentLoader.
type Document struct {
	ID        string
	Path      string
	Type      DocumentType
	MaxTokens int
	Loader    DocumentLoader
}

// NewDocumentParams defines the input parameters for creating a new Document
// instance. It is used by the constructor functions to initialize Document
// values with consistent metadata and loader configuration.
type NewDocumentParams struct {
	ID        string
	Path      string
	MaxTokens int
	Loader    DocumentLoader
}

// NewTextDocument creates a new Document of type DocumentTypeText using the
// provided parameters. This is used for prose sources: plain text, markdown,
// extracted web articles, and word-processor documents.
func NewTextDocument(params NewDocumentParams) Document {
	return Document{
		ID:        params.ID,
		Path:      params.Path,
		Type:      DocumentTypeText,
		MaxTokens: params.MaxTokens,
		Loader:    params.Loader,
	}
}

// NewCSVDocument creates a new Document of type DocumentTypeCSV. CSV sources
// are chunked row-wise with the header repeated per chunk.
func NewCSVDocument(params NewDocumentParams) Document {
	return Document{
		ID:        params.ID,
		Path:      params.Path,
		Type:      DocumentTypeCSV,
		MaxTokens: params.MaxTokens,
		Loader:    params.Loader,
	}
}

// GetText retrieves the raw text content of the document using its Loader.
//
// Example:
//
//	text, err := doc.GetText(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(text))
func (d *Document) GetText(ctx context.Context) ([]byte, error) {
	return d.Loader.GetDocumentText(ctx, *d)
}

// DocumentLoader defines the interface for loading the contents of a
// Document. Implementations may load from disk, object storage, or the web.
type DocumentLoader interface {
	GetDocumentText(ctx context.Context, doc Document) ([]byte, error)
}
