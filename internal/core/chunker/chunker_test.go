package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyInput(t *testing.T) {
	assert.Empty(t, Chunk("", 1000, 200))
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	text := "A short note that fits in one chunk."
	chunks := Chunk(text, 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkCutsAtSentenceBoundaries(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota."
	chunks := Chunk(text, 25, 5)
	assert.Equal(t, []string{
		"Alpha beta gamma. ",
		"mma. Delta epsilon zeta. ",
		"eta. Eta theta iota.",
	}, chunks)
}

func TestChunkNoBoundaryFallsBackToSizeCut(t *testing.T) {
	text := strings.Repeat("a", 250)
	chunks := Chunk(text, 100, 0)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
}

func TestChunkOverlapSharesTailWithNextChunk(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		for j := 0; j < 30; j++ {
			sb.WriteString("The quick brown fox jumps. ")
		}
		sb.WriteString("\n\n")
	}
	text := sb.String()

	const size, overlap = 1000, 200
	chunks := Chunk(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), size, "chunk %d over size", i)
	}
	// Each chunk starts overlap runes before the previous cut, so the tail of
	// one chunk is the head of the next.
	for i := 0; i < len(chunks)-1; i++ {
		if len(chunks[i]) >= overlap && len(chunks[i+1]) >= overlap {
			assert.True(t, strings.HasSuffix(chunks[i], chunks[i+1][:overlap]),
				"chunk %d does not overlap with chunk %d", i, i+1)
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("Sentences repeat but position matters for the cut points. ")
	}
	text := sb.String()

	first := Chunk(text, 1000, 200)
	second := Chunk(text, 1000, 200)
	assert.Equal(t, first, second)
}

func TestChunkDegenerateOverlapStillTerminates(t *testing.T) {
	text := strings.Repeat("x", 500)
	chunks := Chunk(text, 10, 50)
	require.NotEmpty(t, chunks)
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}
