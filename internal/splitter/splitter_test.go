package splitter_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/splitter"
)

func words(n int, prefix string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func TestNewRejectsInvalidSizes(t *testing.T) {
	_, err := splitter.New(100, 100)
	assert.ErrorIs(t, err, splitter.ErrInvalidOverlap)

	_, err = splitter.New(100, -1)
	assert.ErrorIs(t, err, splitter.ErrInvalidOverlap)

	_, err = splitter.New(0, 0)
	assert.ErrorIs(t, err, splitter.ErrInvalidChunkSize)
}

func TestShortTextIsOneChunk(t *testing.T) {
	s, err := splitter.New(100, 10)
	require.NoError(t, err)

	chunks, err := s.SplitText("Hello there. How can I assist you today?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello there. How can I assist you today?"}, chunks)

	chunks, err = s.SplitText("   \n\n  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunksRespectSizeAndOverlap(t *testing.T) {
	s, err := splitter.New(100, 10)
	require.NoError(t, err)

	text := words(1000, "w")
	chunks, err := s.SplitText(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, splitter.CountTokens(c), 100, "chunk %d too long", i)
		if i == 0 {
			continue
		}
		prev := strings.Fields(chunks[i-1])
		cur := strings.Fields(c)
		assert.Equal(t, prev[len(prev)-10:], cur[:10], "chunk %d does not share overlap", i)
	}

	// every token appears in some chunk
	last := strings.Fields(chunks[len(chunks)-1])
	assert.Equal(t, "w999", last[len(last)-1])
}

func TestSentencesStayWhole(t *testing.T) {
	s, err := splitter.New(8, 2)
	require.NoError(t, err)

	text := "one two three four five. six seven eight nine.\n\nten eleven"
	chunks, err := s.SplitText(text)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"one two three four five.",
		"four five. six seven eight nine. ten eleven",
	}, chunks)
}

func TestSplitDocuments(t *testing.T) {
	s, err := splitter.New(5, 1)
	require.NoError(t, err)

	docs := []*api.Document{
		{ID: "bucket/a.txt", Text: words(9, "a"), Metadata: map[string]any{"file_name": "a.txt"}},
		{ID: "bucket/b.txt", Text: "short", Metadata: map[string]any{"file_name": "b.txt"}},
	}

	chunks, err := s.SplitDocuments(docs)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "a0 a1 a2 a3", chunks[0].Text)
	assert.Equal(t, "a3 a4 a5 a6 a7", chunks[1].Text)
	assert.Equal(t, "a7 a8", chunks[2].Text)
	assert.Equal(t, 1, chunks[1].Metadata[splitter.MetaChunkIndex])
	assert.Equal(t, "bucket/a.txt", chunks[1].Metadata[splitter.MetaDocID])
	assert.Equal(t, "a.txt", chunks[1].Metadata["file_name"])
	assert.Equal(t, splitter.ChunkID("bucket/a.txt", 1), chunks[1].ID)

	assert.Equal(t, "short", chunks[3].Text)
	assert.Equal(t, 0, chunks[3].Metadata[splitter.MetaChunkIndex])

	// source metadata is not shared with chunks
	_, ok := docs[0].Metadata[splitter.MetaDocID]
	assert.False(t, ok)

	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
	assert.Equal(t, splitter.ChunkID("x", 0), splitter.ChunkID("x", 0))
}
