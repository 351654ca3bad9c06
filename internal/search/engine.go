package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fileorg/organizer/internal/keyword"
	"github.com/fileorg/organizer/internal/provider"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// Engine runs hybrid search against the vector store and (optionally) the
// keyword index, per spec.md §4.9.
type Engine struct {
	store    *store.Store
	vectors  vectorstore.VectorStore
	embedder provider.EmbeddingProvider
	keyword  *keyword.Index // nil uses the DB LIKE fallback
	logger   *slog.Logger
}

func New(s *store.Store, vectors vectorstore.VectorStore, embedder provider.EmbeddingProvider, kw *keyword.Index, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, vectors: vectors, embedder: embedder, keyword: kw, logger: logger}
}

// Search embeds query, runs a top-limit vector search under filter, and
// (when filter.Hybrid) unions keyword hits into the result, preserving
// vector-first order and deduplicating by path. Every surviving result is
// enriched with its tags and first-chunk snippet.
func (e *Engine) Search(ctx context.Context, query string, limit int, filter Filter) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	var allowedPaths map[string]bool
	if filter.Tag != "" {
		tagged, err := e.store.FindFilesByTag(ctx, filter.Tag)
		if err != nil {
			return nil, fmt.Errorf("search: tag filter: %w", err)
		}
		allowedPaths = make(map[string]bool, len(tagged))
		for _, f := range tagged {
			allowedPaths[f.Path] = true
		}
	}

	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("search: embedder returned no vector for query")
	}

	vecFilter := vectorstore.SearchFilter{}
	if filter.Path != "" {
		vecFilter.PathPrefix = filter.Path
	}
	vecHits, err := e.vectors.Search(ctx, vecs[0], limit, vecFilter)
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}

	order := make([]string, 0, limit)
	seen := make(map[string]bool, limit)
	scores := make(map[string]float64, limit)
	sources := make(map[string]string, limit)
	mimes := make(map[string]string, limit)

	for _, hit := range vecHits {
		p := hit.Payload.Path
		if !passesPayloadFilter(hit.Payload, filter, allowedPaths) {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		order = append(order, p)
		scores[p] = hit.Score
		sources[p] = "vector"
		mimes[p] = hit.Payload.MIME
	}

	if filter.Hybrid {
		kwHits, err := e.keywordSearch(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("search: keyword search: %w", err)
		}
		for _, hit := range kwHits {
			if seen[hit.Path] {
				continue
			}
			if allowedPaths != nil && !allowedPaths[hit.Path] {
				continue
			}
			if filter.Path != "" && !pathMatches(hit.Path, filter.Path) {
				continue
			}
			seen[hit.Path] = true
			order = append(order, hit.Path)
			scores[hit.Path] = hit.Score
			sources[hit.Path] = "keyword"
		}
	}

	if len(order) > limit {
		order = order[:limit]
	}

	results := make([]Result, 0, len(order))
	for _, p := range order {
		r, err := e.enrich(ctx, p, scores[p], sources[p], mimes[p], filter)
		if err != nil {
			e.logger.Warn("search: enrich failed, skipping", "path", p, "error", err)
			continue
		}
		if r == nil {
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

// keywordSearch runs the keyword half: the on-disk index when present, a
// DB LIKE scan otherwise (spec.md §4.9's explicit fallback).
func (e *Engine) keywordSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	if e.keyword != nil {
		hits, err := e.keyword.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(hits))
		for i, h := range hits {
			out[i] = Result{Path: h.Path, Score: h.Score, Source: "keyword"}
		}
		return out, nil
	}

	files, err := e.store.SearchFilesByPathLike(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(files))
	for i, f := range files {
		out[i] = Result{Path: f.Path, MIME: f.MIME, Score: 0, Source: "keyword"}
	}
	return out, nil
}

// enrich loads the file's tags and first-chunk snippet. Returns a nil
// Result (no error) when the file has since disappeared from the store,
// so a stale vector/keyword hit is silently dropped rather than surfaced.
func (e *Engine) enrich(ctx context.Context, path string, score float64, source, mime string, filter Filter) (*Result, error) {
	f, ok, err := e.store.GetFileByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if mime == "" {
		mime = f.MIME
	}
	if filter.MIME != "" && mime != filter.MIME {
		return nil, nil
	}
	if !withinMTimeRange(f, filter) {
		return nil, nil
	}

	tags, err := e.store.GetTagsForFile(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	tagNames := make([]string, len(tags))
	for i, t := range tags {
		tagNames[i] = t.TagName
	}

	snippet := ""
	chunks, err := e.store.GetChunksByFile(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		snippet = chunks[0].TextPreview
	}

	return &Result{
		Path:    path,
		MIME:    mime,
		Score:   score,
		Source:  source,
		Tags:    tagNames,
		Snippet: snippet,
	}, nil
}

func withinMTimeRange(f store.File, filter Filter) bool {
	if filter.MTimeAfter != nil && f.ModTime.Before(*filter.MTimeAfter) {
		return false
	}
	if filter.MTimeBefore != nil && f.ModTime.After(*filter.MTimeBefore) {
		return false
	}
	return true
}

// passesPayloadFilter applies the path/mime/mtime/tag filter directly
// against a vector hit's payload, before any store round-trip.
func passesPayloadFilter(p vectorstore.Payload, filter Filter, allowedPaths map[string]bool) bool {
	if filter.Path != "" && !pathMatches(p.Path, filter.Path) {
		return false
	}
	if filter.MIME != "" && p.MIME != filter.MIME {
		return false
	}
	if filter.MTimeAfter != nil && p.MTime < filter.MTimeAfter.Unix() {
		return false
	}
	if filter.MTimeBefore != nil && p.MTime > filter.MTimeBefore.Unix() {
		return false
	}
	if allowedPaths != nil && !allowedPaths[p.Path] {
		return false
	}
	return true
}

func pathMatches(path, filterPath string) bool {
	if len(path) < len(filterPath) {
		return false
	}
	return path[:len(filterPath)] == filterPath
}
