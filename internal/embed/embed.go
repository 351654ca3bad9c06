// Package embed orchestrates spec.md §4.3's embedding step: it joins
// chunks to their file, probes the vector store for already-embedded
// chunks in batches of 256, and upserts vectors for whatever remains.
package embed

import (
	"context"
	"log/slog"

	"github.com/fileorg/organizer/internal/provider"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// existenceProbeBatchSize is fixed by spec.md §4.3 ("batches of 256 ids").
const existenceProbeBatchSize = 256

// defaultEmbedBatchSize is used when Options.BatchSize is unset.
const defaultEmbedBatchSize = 32

type Options struct {
	// BatchSize is how many absent chunks are sent to the embedding
	// provider per call.
	BatchSize int
}

func DefaultOptions() Options {
	return Options{BatchSize: defaultEmbedBatchSize}
}

// Embedder is spec.md §4.3's embedding step.
type Embedder struct {
	store    *store.Store
	vectors  vectorstore.VectorStore
	provider provider.EmbeddingProvider
	opts     Options
	logger   *slog.Logger
}

func New(s *store.Store, vectors vectorstore.VectorStore, p provider.EmbeddingProvider, opts Options, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultEmbedBatchSize
	}
	return &Embedder{store: s, vectors: vectors, provider: p, opts: opts, logger: logger}
}

// Run embeds every chunk belonging to fileIDs (or all files, when empty)
// whose hash is not already present in the vector store. It returns the
// count of newly embedded chunks.
func (e *Embedder) Run(ctx context.Context, fileIDs []int64) (int, error) {
	if _, noop := e.vectors.(vectorstore.Noop); noop {
		return 0, nil
	}

	chunks, err := e.store.ListChunksForEmbedding(ctx, fileIDs)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	absent, err := e.filterAbsent(ctx, chunks)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for start := 0; start < len(absent); start += e.opts.BatchSize {
		select {
		case <-ctx.Done():
			return embedded, ctx.Err()
		default:
		}
		end := start + e.opts.BatchSize
		if end > len(absent) {
			end = len(absent)
		}
		batch := absent[start:end]
		n, err := e.embedBatch(ctx, batch)
		if err != nil {
			e.logger.Warn("embed: provider failure, batch skipped", "error", err, "batch_size", len(batch))
			continue
		}
		embedded += n
	}
	return embedded, nil
}

// filterAbsent probes the vector store in batches of 256 and returns the
// chunks whose hash is not yet present.
func (e *Embedder) filterAbsent(ctx context.Context, chunks []store.ChunkWithFile) ([]store.ChunkWithFile, error) {
	var absent []store.ChunkWithFile
	for start := 0; start < len(chunks); start += existenceProbeBatchSize {
		end := start + existenceProbeBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		ids := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.Hash
		}
		existing, err := e.vectors.ExistingIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, c := range batch {
			if !existing[c.Hash] {
				absent = append(absent, c)
			}
		}
	}
	return absent, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []store.ChunkWithFile) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.TextPreview
	}
	vecs, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(batch) {
		return 0, nil
	}
	points := make([]vectorstore.Point, len(batch))
	for i, c := range batch {
		points[i] = vectorstore.Point{
			ChunkID: c.Hash,
			Vector:  vecs[i],
			Payload: vectorstore.Payload{
				FileID:       c.FileID,
				ChunkID:      c.Hash,
				Path:         c.Path,
				MIME:         c.MIME,
				Ext:          c.Extension,
				MTime:        c.MTime.Unix(),
				FileHash:     c.FileHash,
				PathPrefixes: vectorstore.PathPrefixes(c.Path),
			},
		}
	}
	if err := e.vectors.Upsert(ctx, points); err != nil {
		return 0, err
	}
	return len(points), nil
}
