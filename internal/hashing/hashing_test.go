package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastHash_DeterministicForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	h1, err := FastHash(path)
	require.NoError(t, err)
	h2, err := FastHash(path)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
}

func TestFastHash_DiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("content A"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("content B"), 0o644))

	hA, err := FastHash(pathA)
	require.NoError(t, err)
	hB, err := FastHash(pathB)
	require.NoError(t, err)

	assert.NotEqual(t, hA, hB)
}

func TestFastHash_OnlyReadsLeadingBytes(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.bin")
	pathB := filepath.Join(dir, "b.bin")

	prefix := make([]byte, FastHashBytes)
	for i := range prefix {
		prefix[i] = byte(i % 251)
	}

	contentA := append(append([]byte{}, prefix...), []byte("tailA")...)
	contentB := append(append([]byte{}, prefix...), []byte("tailB")...)

	require.NoError(t, os.WriteFile(pathA, contentA, 0o644))
	require.NoError(t, os.WriteFile(pathB, contentB, 0o644))

	hA, err := FastHash(pathA)
	require.NoError(t, err)
	hB, err := FastHash(pathB)
	require.NoError(t, err)

	// Same leading FastHashBytes, differing tails: fast hash must match.
	assert.Equal(t, hA, hB)

	fullA, err := FullHash(pathA)
	require.NoError(t, err)
	fullB, err := FullHash(pathB)
	require.NoError(t, err)
	assert.NotEqual(t, fullA, fullB)
}

func TestFullHash_SmallFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o644))

	h, err := FullHash(path)
	require.NoError(t, err)
	assert.NotEmpty(t, h)
}

func TestFullHash_NonexistentFile(t *testing.T) {
	_, err := FullHash("/nonexistent/path/file.txt")
	assert.Error(t, err)
}

func TestChunkID_StableForSameInputs(t *testing.T) {
	id1 := ChunkID(0, 100, []byte("chunk content"))
	id2 := ChunkID(0, 100, []byte("chunk content"))
	assert.Equal(t, id1, id2)
}

func TestChunkID_DiffersWhenRangeDiffers(t *testing.T) {
	content := []byte("same bytes")
	id1 := ChunkID(0, 10, content)
	id2 := ChunkID(5, 15, content)
	assert.NotEqual(t, id1, id2)
}

func TestChunkID_DiffersWhenContentDiffers(t *testing.T) {
	id1 := ChunkID(0, 10, []byte("aaaaaaaaaa"))
	id2 := ChunkID(0, 10, []byte("bbbbbbbbbb"))
	assert.NotEqual(t, id1, id2)
}

func TestBytes_Deterministic(t *testing.T) {
	assert.Equal(t, Bytes([]byte("x")), Bytes([]byte("x")))
	assert.NotEqual(t, Bytes([]byte("x")), Bytes([]byte("y")))
}
