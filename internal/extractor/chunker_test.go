package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_SplitsAtSentenceBoundary(t *testing.T) {
	text := strings.Repeat("a", 50) + ". " + strings.Repeat("b", 50)
	chunks := chunkText(text, 55)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."))
	assert.Equal(t, " "+strings.Repeat("b", 50), chunks[1].Text)
}

func TestChunkText_FallsBackToSpaceWhenNoPunctuation(t *testing.T) {
	text := strings.Repeat("a", 50) + " " + strings.Repeat("b", 50)
	chunks := chunkText(text, 55)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, " "))
	assert.Equal(t, strings.Repeat("b", 50), chunks[1].Text)
}

func TestChunkText_HardCutWhenNoBoundaryFound(t *testing.T) {
	text := strings.Repeat("a", 120)
	chunks := chunkText(text, 50)
	require.Len(t, chunks, 3)
	assert.Equal(t, 50, len(chunks[0].Text))
	assert.Equal(t, 50, len(chunks[1].Text))
	assert.Equal(t, 20, len(chunks[2].Text))
}

func TestChunkText_ChunksCoverWholeInputContiguously(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	chunks := chunkText(text, 256)
	require.NotEmpty(t, chunks)
	assert.Equal(t, uint64(0), chunks[0].Start)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End, chunks[i].Start)
	}
	assert.Equal(t, uint64(len(text)), chunks[len(chunks)-1].End)
}

func TestChunkText_EmptyInputYieldsNoChunks(t *testing.T) {
	assert.Empty(t, chunkText("", 2048))
}
