package vectorstore

import "context"

// Noop is used when no vector store is configured. Per spec.md §4.3,
// embedding is skipped entirely in that case; Noop exists so callers can
// depend on the VectorStore interface unconditionally rather than nil-check.
type Noop struct{}

var _ VectorStore = Noop{}

func (Noop) Upsert(ctx context.Context, points []Point) error { return nil }

func (Noop) ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (Noop) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	return map[string][]float32{}, nil
}

func (Noop) Search(ctx context.Context, vector []float32, topK int, filter SearchFilter) ([]SearchResult, error) {
	return nil, nil
}

func (Noop) Delete(ctx context.Context, chunkIDs []string) error { return nil }

func (Noop) Dimension() int { return 0 }

func (Noop) Close() error { return nil }
