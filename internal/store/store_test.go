package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertFile_InsertsNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 5, ModTime: time.Now(), Hash: "abc"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Changed)

	f, ok, err := s.GetFileByPath(ctx, "/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FileStatusNew, f.Status)
	assert.Equal(t, "abc", f.Hash)
}

func TestUpsertFile_UnchangedUpdatesOnlyLastSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mtime := time.Now().Truncate(time.Millisecond)
	_, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 5, ModTime: mtime, Hash: "abc"})
	require.NoError(t, err)

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 5, ModTime: mtime, Hash: "abc"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)
}

func TestUpsertFile_SizeChangeMarksChanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mtime := time.Now().Truncate(time.Millisecond)
	_, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 5, ModTime: mtime, Hash: "abc"})
	require.NoError(t, err)

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 6, ModTime: mtime, Hash: "abc"})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	f, _, err := s.GetFileByPath(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, FileStatusSeen, f.Status)
}

func TestBackfillHash_OnlyWritesIfUnset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.BackfillHash(ctx, res.FileID, "full-hash-1"))
	require.NoError(t, s.BackfillHash(ctx, res.FileID, "fast-hash-2"))

	f, _, err := s.GetFileByID(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, "full-hash-1", f.Hash)
}

func TestFindFilesByHash_ReturnsAllSharingHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertFile(ctx, ScanUpsert{Path: "/orig.txt", Size: 5, ModTime: time.Now(), Hash: "same"})
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, ScanUpsert{Path: "/dup.txt", Size: 5, ModTime: time.Now(), Hash: "same"})
	require.NoError(t, err)

	files, err := s.FindFilesByHash(ctx, "same")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/orig.txt", files[0].Path)
}

func TestReplaceChunks_InsertsDeletesAndKeepsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 10, ModTime: time.Now()})
	require.NoError(t, err)

	diff, err := s.ReplaceChunks(ctx, res.FileID, []Chunk{
		{Hash: "h1", Start: 0, End: 5, TextPreview: "hello"},
		{Hash: "h2", Start: 5, End: 10, TextPreview: "world"},
	})
	require.NoError(t, err)
	assert.Len(t, diff.Inserted, 2)
	assert.Empty(t, diff.Deleted)

	diff2, err := s.ReplaceChunks(ctx, res.FileID, []Chunk{
		{Hash: "h1", Start: 0, End: 5, TextPreview: "hello"},
		{Hash: "h3", Start: 5, End: 10, TextPreview: "there"},
	})
	require.NoError(t, err)
	assert.Len(t, diff2.Inserted, 1)
	assert.Equal(t, "h3", diff2.Inserted[0].Hash)
	assert.Len(t, diff2.Deleted, 1)
	assert.Equal(t, "h2", diff2.Deleted[0].Hash)

	chunks, err := s.GetChunksByFile(ctx, res.FileID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestReplaceChunks_NoChangeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 10, ModTime: time.Now()})
	require.NoError(t, err)

	chunks := []Chunk{{Hash: "h1", Start: 0, End: 5, TextPreview: "hello"}}
	_, err = s.ReplaceChunks(ctx, res.FileID, chunks)
	require.NoError(t, err)

	diff, err := s.ReplaceChunks(ctx, res.FileID, chunks)
	require.NoError(t, err)
	assert.Empty(t, diff.Inserted)
	assert.Empty(t, diff.Deleted)
}

func TestTagFile_InsertOrIgnoreSemantics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.pdf", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.TagFile(ctx, res.FileID, "document/pdf", 0.9, TagSourceClassifier))
	require.NoError(t, s.TagFile(ctx, res.FileID, "document/pdf", 0.9, TagSourceClassifier))

	tags, err := s.GetTagsForFile(ctx, res.FileID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "document/pdf", tags[0].TagName)
}

func TestCopyFileTags_DeduplicatesAcrossFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dup, err := s.UpsertFile(ctx, ScanUpsert{Path: "/dup.txt", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)
	orig, err := s.UpsertFile(ctx, ScanUpsert{Path: "/orig.txt", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.TagFile(ctx, dup.FileID, "text", 0.9, TagSourceClassifier))
	require.NoError(t, s.TagFile(ctx, orig.FileID, "text", 0.9, TagSourceClassifier))
	require.NoError(t, s.TagFile(ctx, dup.FileID, "inbox/download", 0.9, TagSourceClassifier))

	require.NoError(t, s.CopyFileTags(ctx, dup.FileID, orig.FileID))

	tags, err := s.GetTagsForFile(ctx, orig.FileID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestHasPlannedActionOfKind_ExclusionInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)

	has, err := s.HasPlannedActionOfKind(ctx, res.FileID, ActionMove, ActionRename)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.CreatePlannedAction(ctx, res.FileID, ActionMove, map[string]string{"to": "/dst/a.txt"})
	require.NoError(t, err)

	has, err = s.HasPlannedActionOfKind(ctx, res.FileID, ActionMove, ActionRename)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestActionLifecycle_PlannedExecutedUndone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/a.txt", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)

	id, err := s.CreatePlannedAction(ctx, res.FileID, ActionMove, map[string]string{"to": "/dst/a.txt"})
	require.NoError(t, err)

	planned, err := s.ListActionsByStatus(ctx, ActionStatusPlanned, nil)
	require.NoError(t, err)
	require.Len(t, planned, 1)

	require.NoError(t, s.MarkActionExecuted(ctx, id, "/trash/a.txt", "undo-token"))
	a, ok, err := s.GetAction(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ActionStatusExecuted, a.Status)
	require.NotNil(t, a.ExecutedAt)

	require.NoError(t, s.MarkActionUndone(ctx, id))
	a, _, err = s.GetAction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ActionStatusPlanned, a.Status)
	assert.Nil(t, a.ExecutedAt)
}

func TestMarkActionError_IsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/secret/x", Size: 1, ModTime: time.Now()})
	require.NoError(t, err)
	id, err := s.CreatePlannedAction(ctx, res.FileID, ActionMove, map[string]string{"to": "/ok/x"})
	require.NoError(t, err)

	require.NoError(t, s.MarkActionError(ctx, id, "path denied"))
	a, _, err := s.GetAction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ActionStatusError, a.Status)
	assert.Equal(t, "path denied", a.Error)
}

func TestDirtyQueue_MarkListClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkDirty(ctx, "/a.txt", "rescan"))
	require.NoError(t, s.MarkDirty(ctx, "/b.txt", "apply"))

	entries, err := s.ListDirty(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, s.ClearDirty(ctx, "/a.txt"))
	entries, err = s.ListDirty(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/b.txt", entries[0].Path)
}

func TestPurgeFile_CascadesDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertFile(ctx, ScanUpsert{Path: "/w/gone.txt", Size: 5, ModTime: time.Now(), Hash: "h"})
	require.NoError(t, err)
	_, err = s.ReplaceChunks(ctx, res.FileID, []Chunk{{Hash: "c1", Start: 0, End: 5}})
	require.NoError(t, err)
	require.NoError(t, s.UpsertMetadata(ctx, Metadata{FileID: res.FileID, Key: "width", Value: "100"}))
	require.NoError(t, s.TagFile(ctx, res.FileID, "image", 0.9, TagSourceClassifier))
	_, err = s.CreatePlannedAction(ctx, res.FileID, ActionTag, map[string]string{})
	require.NoError(t, err)

	purged, err := s.PurgeFile(ctx, "/w/gone.txt")
	require.NoError(t, err)
	assert.Equal(t, "h", purged.FileHash)
	assert.Equal(t, []string{"c1"}, purged.ChunkHashes)

	_, ok, err := s.GetFileByPath(ctx, "/w/gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	chunks, err := s.GetChunksByFile(ctx, res.FileID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	actions, err := s.ListActionsByStatus(ctx, ActionStatusPlanned, nil)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestRules_UpsertIsUpdateKeyedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRule(ctx, Rule{Name: "pdfs", Priority: 10, Enabled: true, ConditionJSON: `{}`, ActionJSON: `[]`}))
	require.NoError(t, s.UpsertRule(ctx, Rule{Name: "pdfs", Priority: 5, Enabled: true, ConditionJSON: `{}`, ActionJSON: `[]`}))

	rules, err := s.ListEnabledRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 5, rules[0].Priority)
}

func TestAudit_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAudit(ctx, nil, EventWatchPurge, map[string]any{"path": "/w/gone.txt"}))
	entries, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, EventWatchPurge, entries[0].Event)
}
