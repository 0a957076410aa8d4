package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestAtlasStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	ns := "llamaindex_db.test"

	mt.Run("query", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "c1"},
				{Key: "text", Value: "the sky is blue"},
				{Key: "metadata", Value: bson.D{
					{Key: "file_name", Value: "sky.txt"},
					{Key: "file_path", Value: "bucket/sky.txt"},
				}},
				{Key: "score", Value: 0.92},
			},
			bson.D{
				{Key: "_id", Value: "c2"},
				{Key: "text", Value: "grass is green"},
				{Key: "score", Value: 0.41},
			},
		))

		docs, err := store.Query(ctx, NewQueryParams("test", []float32{0.1, 0.2}, WithLimit(2)))
		require.NoError(mt, err)
		require.Len(mt, docs, 2)

		assert.Equal(mt, "c1", docs[0].ID)
		assert.Equal(mt, "the sky is blue", docs[0].Content)
		assert.Equal(mt, "sky.txt", docs[0].Title)
		assert.Equal(mt, "bucket/sky.txt", docs[0].Source)
		assert.InDelta(mt, 0.92, docs[0].Score, 1e-9)
		assert.Empty(mt, docs[1].Title)
	})

	mt.Run("upsert", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 2},
			bson.E{Key: "nModified", Value: 0},
		))

		err := store.Upsert(ctx, "test", []*Point{
			{ID: "c1", Text: "one", Vector: []float32{1}, Metadata: map[string]any{"file_name": "a.txt"}},
			{ID: "c2", Text: "two", Vector: []float32{2}, Metadata: map[string]any{}},
		})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
	})

	mt.Run("upsert nothing", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		require.NoError(mt, store.Upsert(ctx, "test", nil))
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("create search index", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "indexesCreated", Value: bson.A{
				bson.D{{Key: "id", Value: "1"}, {Key: "name", Value: "vector_index"}},
			}},
		))

		err := store.CreateSearchIndex(ctx, "test", DefaultIndexDefinition())
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "createSearchIndexes", started.CommandName)
	})

	mt.Run("search index already exists", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    68,
			Name:    "IndexAlreadyExists",
			Message: "Index vector_index already exists.",
		}))

		assert.NoError(mt, store.CreateSearchIndex(ctx, "test", DefaultIndexDefinition()))
	})

	mt.Run("search index failure", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized on llamaindex_db",
		}))

		err := store.CreateSearchIndex(ctx, "test", DefaultIndexDefinition())
		assert.ErrorContains(mt, err, "vector_index")
	})

	mt.Run("count", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "n", Value: 7}},
		))

		n, err := store.Count(ctx, "test")
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), n)
	})

	mt.Run("collection exists", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "llamaindex_db.$cmd.listCollections", mtest.FirstBatch,
			bson.D{{Key: "name", Value: "test"}, {Key: "type", Value: "collection"}},
		))

		ok, err := store.CollectionExists(ctx, "test")
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("close keeps borrowed client", func(mt *mtest.T) {
		store := NewAtlasStoreFromClient(mt.Client, "llamaindex_db")
		assert.NoError(mt, store.Close())
	})
}
