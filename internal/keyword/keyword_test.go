package keyword

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileorg/organizer/internal/store"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBuildIndex_ThenSearchFindsDoc(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.BuildIndex(ctx, []Doc{
		{Path: "/docs/invoice.pdf", MIME: "application/pdf", Preview: "quarterly invoice summary"},
		{Path: "/docs/photo.jpg", MIME: "image/jpeg", Preview: "beach sunset photo"},
	}))
	assert.True(t, idx.Built())

	results, err := idx.Search(ctx, "invoice", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/docs/invoice.pdf", results[0].Path)
}

func TestUpsertDocs_ReplacesPriorEntry(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.BuildIndex(ctx, []Doc{{Path: "/a.txt", Preview: "alpha content"}}))
	require.NoError(t, idx.UpsertDocs(ctx, []Doc{{Path: "/a.txt", Preview: "beta content"}}))

	resAlpha, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, resAlpha)

	resBeta, err := idx.Search(ctx, "beta", 10)
	require.NoError(t, err)
	require.Len(t, resBeta, 1)
}

func TestDeleteDocs_RemovesFromIndex(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.BuildIndex(ctx, []Doc{{Path: "/a.txt", Preview: "alpha"}}))
	require.NoError(t, idx.DeleteDocs(ctx, []string{"/a.txt"}))

	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmptyQueryReturnsNoResults(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRefresh_BuildsIndexWhenNotYetBuilt(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, nil)
	require.NoError(t, err)
	defer idx.Close()

	s, err := store.Open(filepath.Join(dir, "organizer.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	res, err := s.UpsertFile(ctx, store.ScanUpsert{Path: "/a.txt", Size: 5, ModTime: time.Now()})
	require.NoError(t, err)
	_, err = s.ReplaceChunks(ctx, res.FileID, []store.Chunk{{Hash: "h1", Start: 0, End: 5, TextPreview: "hello there"}})
	require.NoError(t, err)
	require.NoError(t, s.MarkDirty(ctx, "/a.txt", "rescan"))

	n, err := Refresh(ctx, idx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, idx.Built())

	results, err := idx.Search(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	dirty, err := s.ListDirty(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestRefresh_DeletesMissingPaths(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, nil)
	require.NoError(t, err)
	defer idx.Close()

	s, err := store.Open(filepath.Join(dir, "organizer.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, idx.BuildIndex(ctx, []Doc{{Path: "/gone.txt", Preview: "placeholder"}}))

	require.NoError(t, s.MarkDirty(ctx, "/gone.txt", "watch_purge"))
	n, err := Refresh(ctx, idx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := idx.Search(ctx, "placeholder", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
