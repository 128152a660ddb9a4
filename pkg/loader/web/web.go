package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/clarifier/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

// WebDocumentLoader loads content from web URLs and extracts readable text.
// For HTML pages, it uses readability to extract the main content.
type WebDocumentLoader struct {
	fallback loader.DocumentLoader

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebDocumentLoader creates a new web loader without a fallback loader.
func NewWebDocumentLoader() *WebDocumentLoader {
	return &WebDocumentLoader{
		cache: make(map[string][]byte),
	}
}

// NewWebDocumentLoaderWithLoader creates a web loader with a fallback for
// non-HTML content.
func NewWebDocumentLoaderWithLoader(loader loader.DocumentLoader) *WebDocumentLoader {
	return &WebDocumentLoader{
		fallback: loader,
		cache:    make(map[string][]byte),
	}
}

// GetDocumentText fetches a URL and extracts readable text content.
// For HTML pages, it uses readability to extract the main article content.
func (l *WebDocumentLoader) GetDocumentText(ctx context.Context, doc loader.Document) ([]byte, error) {
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

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		var text []byte

		contentType := resp.Header.Get("Content-Type")
		switch {
		case strings.Contains(contentType, "text/html"):
			pageURL, err := url.Parse(doc.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse url: %w", err)
			}
			article, err := readability.FromReader(resp.Body, pageURL)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			text = []byte(builder.String())

		case l.fallback != nil:
			text, err = l.fallback.GetDocumentText(ctx, doc)
			if err != nil {
				return nil, err
			}

		default:
			text, err = io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
		}

		l.cacheMu.Lock()
		l.cache[key] = text
		l.cacheMu.Unlock()

		return text, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
