package loader

// CacheKey returns the cache identity of a document for loader-level caching
// and request coalescing.
func CacheKey(doc Document) string {
	return doc.ID + ":" + doc.Path
}
