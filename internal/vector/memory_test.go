package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateCollection(ctx, Collection{Name: "test", Dimensions: 2}))
	require.NoError(t, s.Upsert(ctx, "test", []*Point{
		{ID: "x", Text: "east", Vector: []float32{1, 0}, Metadata: map[string]any{"file_name": "e.txt"}},
		{ID: "y", Text: "north", Vector: []float32{0, 1}, Metadata: map[string]any{"file_name": "n.txt"}},
		{ID: "z", Text: "north east", Vector: []float32{1, 1}, Metadata: map[string]any{"file_name": "ne.txt"}},
	}))

	n, err := s.Count(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	docs, err := s.Query(ctx, NewQueryParams("test", []float32{1, 0.1}, WithLimit(2)))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "east", docs[0].Content)
	assert.Equal(t, "north east", docs[1].Content)
	assert.Equal(t, "e.txt", docs[0].Title)

	docs, err = s.Query(ctx, NewQueryParams("test", []float32{0, 1}, WithPayload(false)))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "y", docs[0].ID)
	assert.Empty(t, docs[0].Title)

	// upserting the same id replaces the point
	require.NoError(t, s.Upsert(ctx, "test", []*Point{{ID: "x", Text: "east!", Vector: []float32{1, 0}}}))
	n, _ = s.Count(ctx, "test")
	assert.Equal(t, int64(3), n)
}

func TestMemoryStoreSearchIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateSearchIndex(ctx, "test", DefaultIndexDefinition()))
	require.NoError(t, s.CreateSearchIndex(ctx, "test", DefaultIndexDefinition()))
	assert.Len(t, s.indexes["test"], 1)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
}
