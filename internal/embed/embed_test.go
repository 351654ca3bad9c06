package embed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// fakeVectorStore records Upsert/ExistingIDs calls in memory, without a
// live Qdrant server.
type fakeVectorStore struct {
	points     map[string]vectorstore.Point
	upserts    int
	probeCalls int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: map[string]vectorstore.Point{}}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	f.upserts++
	for _, p := range points {
		f.points[p.ChunkID] = p
	}
	return nil
}

func (f *fakeVectorStore) ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	f.probeCalls++
	out := map[string]bool{}
	for _, id := range chunkIDs {
		if _, ok := f.points[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeVectorStore) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	out := map[string][]float32{}
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

type fakeProvider struct{ calls int }

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}
func (f *fakeProvider) Dimensions() int { return 2 }
func (f *fakeProvider) Close() error    { return nil }

func seedChunkedFile(t *testing.T, s *store.Store, path, content string) int64 {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	res, err := s.UpsertFile(context.Background(), store.ScanUpsert{
		Path: path, Size: info.Size(), ModTime: info.ModTime(), CTime: info.ModTime(),
	})
	require.NoError(t, err)
	_, err = s.ReplaceChunks(context.Background(), res.FileID, []store.Chunk{
		{Hash: "chunkhash-" + path, Start: 0, End: uint64(len(content)), TextPreview: content},
	})
	require.NoError(t, err)
	require.NoError(t, s.SetFileMIME(context.Background(), res.FileID, "text/plain"))
	return res.FileID
}

func TestRun_EmbedsAbsentChunksAndUpsertsPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seedChunkedFile(t, s, filepath.Join(dir, "a.txt"), "hello world")

	vs := newFakeVectorStore()
	p := &fakeProvider{}
	e := New(s, vs, p, DefaultOptions(), nil)

	n, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, vs.upserts)

	point, ok := vs.points["chunkhash-"+filepath.Join(dir, "a.txt")]
	require.True(t, ok)
	assert.Equal(t, "text/plain", point.Payload.MIME)
	assert.NotEmpty(t, point.Payload.Path)
}

func TestRun_IdempotentOnSecondPass(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seedChunkedFile(t, s, filepath.Join(dir, "a.txt"), "hello world")

	vs := newFakeVectorStore()
	p := &fakeProvider{}
	e := New(s, vs, p, DefaultOptions(), nil)

	_, err = e.Run(context.Background(), nil)
	require.NoError(t, err)

	n, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-running after all chunks are embedded must upsert nothing new")
	assert.Equal(t, 1, p.calls, "provider must not be called again once all chunks are present")
}

func TestRun_NoopVectorStoreSkipsEntirely(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seedChunkedFile(t, s, filepath.Join(dir, "a.txt"), "hello world")

	p := &fakeProvider{}
	e := New(s, vectorstore.Noop{}, p, DefaultOptions(), nil)

	n, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, p.calls)
}
