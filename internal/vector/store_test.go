package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/alan-mat/docchat/internal/api"
)

func TestCreatePoints(t *testing.T) {
	docs := []*api.DocumentEmbedding{
		{
			Title:    "a.txt",
			Chunks:   []string{"one", "two"},
			IDs:      []string{"id-1", ""},
			Metadata: []map[string]any{{"file_name": "a.txt"}, nil},
			Values:   [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		},
	}

	points, err := CreatePoints(docs)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "id-1", points[0].ID)
	assert.Equal(t, "one", points[0].Text)
	assert.Equal(t, "a.txt", points[0].Metadata["file_name"])

	assert.NotEmpty(t, points[1].ID)
	assert.NotNil(t, points[1].Metadata)
	assert.Equal(t, []float32{0.3, 0.4}, points[1].Vector)
}

func TestCreatePointsLengthMismatch(t *testing.T) {
	_, err := CreatePoints([]*api.DocumentEmbedding{
		{Title: "a.txt", Chunks: []string{"one", "two"}, Values: [][]float32{{0.1}}},
	})
	assert.Error(t, err)
}

func TestSearchPipeline(t *testing.T) {
	s := &AtlasStore{indexName: DefaultIndexName}
	pipeline := s.searchPipeline(NewQueryParams("test", []float32{1, 0}, WithLimit(2)))
	require.Len(t, pipeline, 3)

	search := pipeline[0][0]
	assert.Equal(t, "$search", search.Key)
	stage := search.Value.(bson.D)
	assert.Equal(t, bson.E{Key: "index", Value: "vector_index"}, stage[0])

	knn := stage[1].Value.(bson.D)
	assert.Equal(t, bson.E{Key: "path", Value: "embedding"}, knn[1])
	assert.Equal(t, bson.E{Key: "k", Value: 2}, knn[2])

	assert.Equal(t, "$project", pipeline[1][0].Key)
	assert.Equal(t, bson.D{{Key: "$limit", Value: 2}}, pipeline[2])
}

func TestSearchPipelineIndexOverride(t *testing.T) {
	s := &AtlasStore{indexName: DefaultIndexName}
	pipeline := s.searchPipeline(NewQueryParams("test", []float32{1}, WithIndex("custom")))

	require.Len(t, pipeline, 3)
	stage := pipeline[0][0].Value.(bson.D)
	assert.Equal(t, "custom", stage[0].Value)
}
