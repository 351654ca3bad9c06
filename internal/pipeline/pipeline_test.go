package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileorg/organizer/internal/action"
	"github.com/fileorg/organizer/internal/classifier"
	"github.com/fileorg/organizer/internal/config"
	"github.com/fileorg/organizer/internal/embed"
	"github.com/fileorg/organizer/internal/extractor"
	"github.com/fileorg/organizer/internal/scanner"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/suggester"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// fakeEmbedder returns a fixed-dimension vector per text, enough for the
// embedder and classifier's kNN path to exercise fakeVectorStore.
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

// fakeVectorStore is an in-memory VectorStore sufficient for exercising
// the embedder's upsert/existence-probe path.
type fakeVectorStore struct {
	points map[string]vectorstore.Point
}

func newFakeVectorStore() *fakeVectorStore { return &fakeVectorStore{points: map[string]vectorstore.Point{}} }

func (f *fakeVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	for _, p := range points {
		f.points[p.ChunkID] = p
	}
	return nil
}
func (f *fakeVectorStore) ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := f.points[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}
func (f *fakeVectorStore) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(chunkIDs))
	for _, id := range chunkIDs {
		if p, ok := f.points[id]; ok {
			out[id] = p.Vector
		}
	}
	return out, nil
}
func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	for _, id := range chunkIDs {
		delete(f.points, id)
	}
	return nil
}
func (f *fakeVectorStore) Dimension() int { return 2 }
func (f *fakeVectorStore) Close() error   { return nil }

func newTestPipeline(t *testing.T, withApplier bool) (*Pipeline, *store.Store, *fakeVectorStore) {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sc, err := scanner.New()
	require.NoError(t, err)

	vs := newFakeVectorStore()
	ex := extractor.New(s, extractor.DefaultOptions(), nil, nil)
	em := embed.New(s, vs, fakeEmbedder{}, embed.DefaultOptions(), nil)
	cl := classifier.New(s, vs, nil, classifier.Config{}, nil)
	sg := suggester.New(s, suggester.DefaultOptions(), nil)

	deps := Dependencies{
		Store:      s,
		Scanner:    sc,
		Extractor:  ex,
		Embedder:   em,
		Classifier: cl,
		Suggester:  sg,
	}
	if withApplier {
		deps.Applier = action.New(s, config.ApplyConfig{ConflictPolicy: "rename"}, nil)
	}

	p, err := New(deps)
	require.NoError(t, err)
	return p, s, vs
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	require.Error(t, err)
}

func TestPipeline_RunScansExtractsEmbedsClassifiesAndSuggests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello world, a simple text note."), 0o644))

	p, s, vs := newTestPipeline(t, false)

	res, err := p.Run(context.Background(), scanner.Options{RootDir: dir, HashMode: scanner.HashModeFast})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ScannedFiles)
	assert.Equal(t, 0, res.ScanErrors)
	assert.Equal(t, 1, res.ExtractedFiles)
	assert.Greater(t, res.EmbeddedChunks, 0)
	assert.Len(t, vs.points, res.EmbeddedChunks)

	f, ok, err := s.GetFileByPath(context.Background(), filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, f.MIME)

	tags, err := s.GetTagsForFile(context.Background(), f.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, tags, "classifier should have tagged the file via the heuristic tier")
}

func TestPipeline_RunAppliesWhenApplierWired(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("content a"), 0o644))

	p, _, _ := newTestPipeline(t, true)

	res, err := p.Run(context.Background(), scanner.Options{RootDir: dir, HashMode: scanner.HashModeFull})
	require.NoError(t, err)

	assert.Equal(t, 2, res.ScannedFiles)
	assert.GreaterOrEqual(t, res.ApplySummary.Succeeded+res.ApplySummary.Failed, 0)
}

func TestPipeline_ProcessSingleFileRecordsMIME(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.txt")
	require.NoError(t, os.WriteFile(path, []byte("single file content"), 0o644))

	p, s, _ := newTestPipeline(t, false)

	info, err := os.Stat(path)
	require.NoError(t, err)
	_, err = s.UpsertFile(context.Background(), store.ScanUpsert{
		Path: path, Size: info.Size(), ModTime: info.ModTime(), CTime: info.ModTime(),
	})
	require.NoError(t, err)

	require.NoError(t, p.ProcessSingleFile(context.Background(), path))

	f, ok, err := s.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, f.MIME, "extractor should have sniffed and recorded a MIME type")
}
