// Package keyword maintains the on-disk keyword index used for the
// keyword half of hybrid search (spec.md §4.9): one document per file,
// keyed by path, containing the concatenation of path, MIME, and the
// file's first chunk preview.
package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/fileorg/organizer/internal/ferrors"
)

// IndexDirName is the directory created under the configured store dir.
const IndexDirName = ".organizer_keyword_index"

// metaFileName is written once an index has been built at least once, per
// spec.md §6's keyword index layout.
const metaFileName = "meta.json"

// Doc is one keyword-indexable document, one per file.
type Doc struct {
	Path    string
	MIME    string
	Preview string
}

func (d Doc) content() string {
	return strings.Join([]string{d.Path, d.MIME, d.Preview}, " ")
}

// Result is a single keyword search hit.
type Result struct {
	Path  string
	Score float64
}

// Index wraps a Bleve index scoped to one document-per-path keyword store.
// Per spec.md §5, callers must not overlap build/upsert/delete invocations
// concurrently; Index serializes them itself via mu so a single process
// never violates that even if callers forget.
type Index struct {
	mu    sync.Mutex
	index bleve.Index
	dir   string
}

// Open opens (or creates) the keyword index at <dbDir>/.organizer_keyword_index.
func Open(dbDir string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(dbDir, IndexDirName)

	if err := validateIntegrity(dir, logger); err != nil {
		logger.Warn("keyword: index failed integrity check, recreating", "path", dir, "error", err)
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, ferrors.Wrap(ferrors.CodeFilePermission, rmErr)
		}
	}

	idx, err := bleve.Open(dir)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		if mkErr := os.MkdirAll(filepath.Dir(dir), 0o755); mkErr != nil {
			return nil, ferrors.Wrap(ferrors.CodeFileNotFound, mkErr)
		}
		m, mapErr := buildMapping()
		if mapErr != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, mapErr)
		}
		idx, err = bleve.New(dir, m)
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}

	return &Index{index: idx, dir: dir}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = "standard"
	return m, nil
}

// validateIntegrity mirrors the teacher's BM25 corruption guard: a missing
// or empty index_meta.json means a prior run died mid-write.
func validateIntegrity(dir string, logger *slog.Logger) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(dir, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	var probe map[string]any
	return json.Unmarshal(data, &probe)
}

// Built reports whether the index has been built at least once, per the
// meta.json convention in spec.md §6.
func (idx *Index) Built() bool {
	_, err := os.Stat(filepath.Join(idx.dir, metaFileName))
	return err == nil
}

func (idx *Index) markBuilt() {
	_ = os.WriteFile(filepath.Join(idx.dir, metaFileName), []byte(`{"built":true}`), 0o644)
}

// BuildIndex performs a full rebuild: delete-all, then add every doc.
func (idx *Index) BuildIndex(ctx context.Context, docs []Doc) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.deleteAllLocked(ctx); err != nil {
		return err
	}
	if err := idx.addLocked(docs); err != nil {
		return err
	}
	idx.markBuilt()
	return nil
}

// UpsertDocs deletes each doc's prior entry by path, then re-adds it.
func (idx *Index) UpsertDocs(ctx context.Context, docs []Doc) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, d := range docs {
		if err := idx.index.Delete(d.Path); err != nil {
			return ferrors.Wrap(ferrors.CodeInternal, err)
		}
	}
	if err := idx.addLocked(docs); err != nil {
		return err
	}
	idx.markBuilt()
	return nil
}

// DeleteDocs removes documents by path.
func (idx *Index) DeleteDocs(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	batch := idx.index.NewBatch()
	for _, p := range paths {
		batch.Delete(p)
	}
	if err := idx.index.Batch(batch); err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

func (idx *Index) addLocked(docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	batch := idx.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.Path, map[string]any{"content": d.content()}); err != nil {
			return ferrors.Wrap(ferrors.CodeInternal, err)
		}
	}
	if err := idx.index.Batch(batch); err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

func (idx *Index) deleteAllLocked(ctx context.Context) error {
	ids, err := idx.allIDsLocked(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	batch := idx.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.index.Batch(batch); err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

func (idx *Index) allIDsLocked(ctx context.Context) ([]string, error) {
	count, err := idx.index.DocCount()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.Fields = nil
	result, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search runs a keyword query over the content field, returning up to
// limit results ordered by descending BM25 score.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	out := make([]Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, Result{Path: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Close closes the underlying index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.index.Close()
}
