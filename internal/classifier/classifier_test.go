package classifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileorg/organizer/internal/provider"
	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

type fakeLLMProvider struct {
	label      string
	confidence float32
	calls      int
}

func (f *fakeLLMProvider) Classify(ctx context.Context, prompt string) (provider.LLMResult, error) {
	f.calls++
	return provider.LLMResult{Label: f.label, Confidence: f.confidence}, nil
}

func (f *fakeLLMProvider) Close() error { return nil }

// fakeKNNStore answers GetVectors/Search from an in-memory fixture, so kNN
// aggregation can be exercised without a live Qdrant.
type fakeKNNStore struct {
	vectors map[string][]float32
	hits    []vectorstore.SearchResult
}

func (f *fakeKNNStore) Upsert(ctx context.Context, points []vectorstore.Point) error { return nil }

func (f *fakeKNNStore) ExistingIDs(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (f *fakeKNNStore) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	out := map[string][]float32{}
	for _, id := range chunkIDs {
		if v, ok := f.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeKNNStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	return f.hits, nil
}

func (f *fakeKNNStore) Delete(ctx context.Context, chunkIDs []string) error { return nil }
func (f *fakeKNNStore) Dimension() int                                     { return 2 }
func (f *fakeKNNStore) Close() error                                       { return nil }

func seedFile(t *testing.T, s *store.Store, dir, name, content, mime string) store.File {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	res, err := s.UpsertFile(context.Background(), store.ScanUpsert{
		Path: path, Size: info.Size(), ModTime: info.ModTime(), CTime: info.ModTime(),
	})
	require.NoError(t, err)
	require.NoError(t, s.SetFileMIME(context.Background(), res.FileID, mime))
	f, ok, err := s.GetFileByID(context.Background(), res.FileID)
	require.NoError(t, err)
	require.True(t, ok)
	return f
}

func TestRun_HeuristicMatchTagsWithConfigConfidence(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := seedFile(t, s, dir, "report.pdf", "irrelevant", "application/pdf")

	c := New(s, vectorstore.Noop{}, provider.NoopLLMProvider{}, Config{HeuristicConfidence: 0.9}, nil)
	tagged, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tagged)

	files, err := s.ListUntaggedFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files, "heuristic-matched file must no longer be untagged")

	tags, err := s.GetTagsForFile(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.InDelta(t, 0.9, tags[0].Confidence, 1e-9)
}

func TestRun_NoHeuristicNoKNNFallsBackToLLM(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seedFile(t, s, dir, "data.bin", "irrelevant", "application/octet-stream")

	llm := &fakeLLMProvider{label: "binary-data", confidence: 0.8}
	c := New(s, vectorstore.Noop{}, llm, Config{LLMEnabled: true}, nil)

	tagged, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tagged)
	assert.Equal(t, 1, llm.calls)
}

func TestRun_LowConfidenceLLMLeavesFileUnknown(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seedFile(t, s, dir, "data.bin", "irrelevant", "application/octet-stream")

	llm := &fakeLLMProvider{label: "maybe", confidence: 0.2}
	c := New(s, vectorstore.Noop{}, llm, Config{LLMEnabled: true}, nil)

	tagged, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, tagged, "confidence below the acceptance threshold must not persist a tag")
}

func TestRun_LLMDisabledAndNoHeuristicLeavesFileUntagged(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seedFile(t, s, dir, "data.bin", "irrelevant", "application/octet-stream")

	c := New(s, vectorstore.Noop{}, provider.NoopLLMProvider{}, Config{}, nil)
	tagged, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, tagged)
}

func TestAggregateKNN_AboveThresholdWinsOverHeuristicAbsence(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := seedFile(t, s, dir, "data.bin", "irrelevant", "application/octet-stream")
	_, err = s.ReplaceChunks(context.Background(), f.ID, []store.Chunk{
		{Hash: "chunk-1", Start: 0, End: 4, TextPreview: "text"},
	})
	require.NoError(t, err)

	neighborFile := seedFile(t, s, dir, "sibling.bin", "irrelevant", "application/octet-stream")
	require.NoError(t, s.TagFile(context.Background(), neighborFile.ID, "invoices", 1.0, store.TagSourceClassifier))

	vs := &fakeKNNStore{
		vectors: map[string][]float32{"chunk-1": {1, 0}},
		hits: []vectorstore.SearchResult{
			{ChunkID: "neighbor-chunk", Score: 0.9, Payload: vectorstore.Payload{FileID: neighborFile.ID}},
		},
	}

	c := New(s, vs, provider.NoopLLMProvider{}, Config{KNNConfidenceThreshold: 0.7}, nil)
	tagged, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tagged)

	tags, err := s.GetTagsForFile(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "invoices", tags[0].TagName)
}

func TestHeuristicLabel_CoversSpecExamples(t *testing.T) {
	assert.Equal(t, "document/pdf", heuristicLabel("/x/a.pdf", "application/pdf", ".pdf"))
	assert.Equal(t, "text", heuristicLabel("/x/a.txt", "text/plain", ".txt"))
	assert.Equal(t, "image", heuristicLabel("/x/a.png", "image/png", ".png"))
	assert.Equal(t, "archive", heuristicLabel("/x/a.zip", "application/zip", ".zip"))
	assert.Equal(t, "inbox/download", heuristicLabel("/home/bob/Downloads/invoice.pdf", "application/pdf", ".pdf"))
	assert.Equal(t, "", heuristicLabel("/x/a.bin", "application/octet-stream", ".bin"))
}
