package keyword

import (
	"context"

	"github.com/fileorg/organizer/internal/ferrors"
	"github.com/fileorg/organizer/internal/store"
)

// Refresh implements the refresh policy from spec.md §4.9: fetch docs for
// every dirty path; if the index has been built before, upsert the paths
// that still exist and delete the paths that are now gone; otherwise build
// the index from scratch. Consumed dirty rows are cleared last, so a crash
// mid-refresh simply re-does the same work next time.
func Refresh(ctx context.Context, idx *Index, s *store.Store) (refreshed int, err error) {
	dirty, err := s.ListDirty(ctx, 0)
	if err != nil {
		return 0, err
	}
	if len(dirty) == 0 {
		return 0, nil
	}

	var present []Doc
	var missing []string
	for _, d := range dirty {
		doc, ok, docErr := fetchDoc(ctx, s, d.Path)
		if docErr != nil {
			return 0, docErr
		}
		if ok {
			present = append(present, doc)
		} else {
			missing = append(missing, d.Path)
		}
	}

	if idx.Built() {
		if len(present) > 0 {
			if err := idx.UpsertDocs(ctx, present); err != nil {
				return 0, err
			}
		}
		if len(missing) > 0 {
			if err := idx.DeleteDocs(ctx, missing); err != nil {
				return 0, err
			}
		}
	} else {
		if err := idx.BuildIndex(ctx, present); err != nil {
			return 0, err
		}
	}

	for _, d := range dirty {
		if err := s.ClearDirty(ctx, d.Path); err != nil {
			return 0, err
		}
	}

	return len(dirty), nil
}

// fetchDoc assembles the keyword document for a path: path + MIME + first
// chunk preview. Returns ok=false if the file no longer exists in the
// relational store (the watcher already purged it).
func fetchDoc(ctx context.Context, s *store.Store, path string) (Doc, bool, error) {
	f, ok, err := s.GetFileByPath(ctx, path)
	if err != nil {
		return Doc{}, false, err
	}
	if !ok {
		return Doc{}, false, nil
	}
	chunks, err := s.GetChunksByFile(ctx, f.ID)
	if err != nil {
		return Doc{}, false, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	preview := ""
	if len(chunks) > 0 {
		preview = chunks[0].TextPreview
	}
	return Doc{Path: f.Path, MIME: f.MIME, Preview: preview}, true, nil
}
