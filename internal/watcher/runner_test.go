package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileorg/organizer/internal/classifier"
	"github.com/fileorg/organizer/internal/embed"
	"github.com/fileorg/organizer/internal/extractor"
	"github.com/fileorg/organizer/internal/keyword"
	"github.com/fileorg/organizer/internal/pipeline"
	"github.com/fileorg/organizer/internal/scanner"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/suggester"
	"github.com/fileorg/organizer/internal/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 2 }
func (fakeEmbedder) Close() error    { return nil }

type fakeVectorStore struct{ deleted []string }

func (f *fakeVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error { return nil }
func (f *fakeVectorStore) ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeVectorStore) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	return nil, nil
}
func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	f.deleted = append(f.deleted, chunkIDs...)
	return nil
}
func (f *fakeVectorStore) Dimension() int { return 2 }
func (f *fakeVectorStore) Close() error   { return nil }

func newTestRunner(t *testing.T, immediateVectorDelete bool) (*Runner, *store.Store, *fakeVectorStore, string) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sc, err := scanner.New()
	require.NoError(t, err)
	vs := &fakeVectorStore{}
	ex := extractor.New(s, extractor.DefaultOptions(), nil, nil)
	em := embed.New(s, vs, fakeEmbedder{}, embed.DefaultOptions(), nil)
	cl := classifier.New(s, vs, nil, classifier.Config{}, nil)
	sg := suggester.New(s, suggester.DefaultOptions(), nil)

	pl, err := pipeline.New(pipeline.Dependencies{
		Store: s, Scanner: sc, Extractor: ex, Embedder: em, Classifier: cl, Suggester: sg,
	})
	require.NoError(t, err)

	kw, err := keyword.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	r, err := NewRunner(RunnerDependencies{
		Pipeline: pl, Store: s, Vectors: vs, Keyword: kw,
	}, RunnerConfig{ImmediateVectorDelete: immediateVectorDelete})
	require.NoError(t, err)
	return r, s, vs, dir
}

func TestNewRunner_RequiresPipelineAndStore(t *testing.T) {
	_, err := NewRunner(RunnerDependencies{}, RunnerConfig{})
	require.Error(t, err)
}

func TestRunnerConfig_ResolvePaths(t *testing.T) {
	assert.Equal(t, []string{"/a"}, RunnerConfig{Paths: []string{"/a"}, ScanIncludePaths: []string{"/b"}}.resolvePaths())
	assert.Equal(t, []string{"/b"}, RunnerConfig{ScanIncludePaths: []string{"/b"}}.resolvePaths())
	assert.Equal(t, []string{"."}, RunnerConfig{}.resolvePaths())
}

func TestRunner_ProcessBatchDrivesSingleFilePipelineForLivePaths(t *testing.T) {
	r, s, _, dir := newTestRunner(t, false)
	path := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("brand new content"), 0o644))

	r.processBatch(context.Background(), []FileEvent{
		{Path: path, Operation: OpCreate, Timestamp: time.Now()},
	})

	f, ok, err := s.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	require.True(t, ok, "single-file pipeline should have created the file row")
	assert.NotEmpty(t, f.MIME)
}

func TestRunner_ProcessBatchPurgesGonePaths(t *testing.T) {
	r, s, vs, dir := newTestRunner(t, true)
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("will be deleted"), 0o644))

	r.processBatch(context.Background(), []FileEvent{
		{Path: path, Operation: OpCreate, Timestamp: time.Now()},
	})

	_, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	r.processBatch(context.Background(), []FileEvent{
		{Path: path, Operation: OpDelete, Timestamp: time.Now()},
	})

	_, ok, err := s.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, ok, "purged file must be gone from the store")
	assert.NotEmpty(t, vs.deleted, "immediate vector delete should have purged the file's chunks")

	entries, err := s.ListAudit(context.Background(), 10)
	require.NoError(t, err)
	var sawPurge, sawWatchPurge bool
	for _, e := range entries {
		if e.Event == store.EventFilePurged {
			sawPurge = true
		}
		if e.Event == store.EventWatchPurge {
			sawWatchPurge = true
		}
	}
	assert.True(t, sawPurge)
	assert.True(t, sawWatchPurge)
}
