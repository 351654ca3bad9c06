// Package vectorstore abstracts the chunk-embedding vector database
// (spec.md §4.3/§6). NewQdrant returns the Qdrant-backed store; Noop is used when no vector
// store is configured, in which case the embedder skips work entirely.
package vectorstore

import "context"

// Payload is the metadata attached to every vector point, per spec.md
// §4.3's exact field set.
type Payload struct {
	FileID       int64
	ChunkID      string
	Path         string
	MIME         string
	Ext          string
	MTime        int64
	FileHash     string
	PathPrefixes []string
}

// Point is a single chunk's embedding plus its payload, keyed by ChunkID
// (the chunk's content-addressed hash from internal/hashing.ChunkID).
type Point struct {
	ChunkID string
	Vector  []float32
	Payload Payload
}

// SearchFilter narrows a similarity search. ExcludeFileID, when non-zero,
// drops results belonging to that file (used by the classifier's kNN step
// to exclude a file's own chunks from its neighbor search, spec.md §4.4).
type SearchFilter struct {
	ExcludeFileID int64
	PathPrefix    string
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	ChunkID string
	Score   float64
	Payload Payload
}

// VectorStore is the engine's vector database contract (spec.md §6).
type VectorStore interface {
	// Upsert writes or overwrites points.
	Upsert(ctx context.Context, points []Point) error

	// ExistingIDs returns the subset of the given chunk IDs already
	// present in the store, used by the embedder's batched existence
	// probe (spec.md §4.3: batches of 256).
	ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error)

	// GetVectors retrieves the stored vector for each of the given chunk
	// IDs that exists, used by the classifier's kNN step to recover a
	// file's own chunk vectors as similarity-search queries (spec.md
	// §4.4).
	GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error)

	// Search runs a top-k similarity search against vector.
	Search(ctx context.Context, vector []float32, topK int, filter SearchFilter) ([]SearchResult, error)

	// Delete removes points by chunk ID, used on chunk-set diff deletion
	// and file purge.
	Delete(ctx context.Context, chunkIDs []string) error

	// Dimension reports the configured vector dimensionality.
	Dimension() int

	// Close releases any underlying connection.
	Close() error
}

// PathPrefixes computes the sequence of '/'-joined ancestor prefixes of
// the lowercased, forward-slash-normalized path, per spec.md §4.3. E.g.
// "/Users/a/Docs/x.pdf" -> ["/users", "/users/a", "/users/a/docs"].
func PathPrefixes(path string) []string {
	norm := normalizeSlashes(path)
	var prefixes []string
	parts := splitNonEmpty(norm, '/')
	cur := ""
	for i, p := range parts {
		cur += "/" + p
		if i < len(parts)-1 { // exclude the filename itself
			prefixes = append(prefixes, cur)
		}
	}
	return prefixes
}

func normalizeSlashes(path string) string {
	out := make([]byte, len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '\\' {
			c = '/'
		}
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
