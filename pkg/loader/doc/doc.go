package doc

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/clarifier/pkg/loader"

	"golang.org/x/sync/singleflight"
)

const docXMLMax = 50 << 20

// DocDocumentLoader loads word-processor documents (.docx, .odt) and extracts
// their text content from the archive XML.
type DocDocumentLoader struct {
	loader loader.DocumentLoader

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewDocDocumentLoader creates a document loader that extracts text directly
// from docx/odt XML.
func NewDocDocumentLoader(loader loader.DocumentLoader) *DocDocumentLoader {
	return &DocDocumentLoader{
		loader: loader,
		cache:  make(map[string][]byte),
	}
}

// GetDocumentText extracts text content from a word-processor document.
func (l *DocDocumentLoader) GetDocumentText(ctx context.Context, doc loader.Document) ([]byte, error) {
	key := loader.CacheKey(doc)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		content, err := l.loader.GetDocumentText(ctx, doc)
		if err != nil {
			return nil, err
		}

		var parsed []byte
		if strings.EqualFold(filepath.Ext(doc.Path), ".odt") {
			parsed, err = parseODT(content)
		} else {
			parsed, err = parseDocx(content)
		}
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = parsed
		l.cacheMu.Unlock()

		return parsed, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
