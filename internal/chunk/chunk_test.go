package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Nil(t, Split("art_x", "", Options{MaxTokens: 1000, OverlapTokens: 100}))
}

func TestSplit_ShorterThanMax(t *testing.T) {
	chunks := Split("art_x", "hello world", Options{MaxTokens: 1000, OverlapTokens: 100})
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestSplit_TokenBoundaries(t *testing.T) {
	text := words(9000)
	toks := Tokenize(text)
	require.Len(t, toks, 9000)

	chunks := Split("art_x", text, Options{MaxTokens: 1000, OverlapTokens: 100, SentenceTolerance: 1})
	require.Len(t, chunks, 10)

	assert.Equal(t, toks[0].start, chunks[0].StartChar)
	assert.Equal(t, toks[1000].start, chunks[0].EndChar)
	assert.Equal(t, toks[900].start, chunks[1].StartChar)
	assert.Equal(t, toks[1900].start, chunks[1].EndChar)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "art_x", c.ArtifactID)
	}
	assert.Equal(t, len(text), chunks[9].EndChar)
}

func TestSplit_DenseChunkIndex(t *testing.T) {
	chunks := Split("art_x", words(2500), Options{MaxTokens: 1000, OverlapTokens: 100, SentenceTolerance: 1})
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
}
