package vector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

const indexLiteral = `{
	"name": "vector_index",
	"definition": {
		"mappings": {
			"dynamic": true,
			"fields": {
				"embedding": {
					"type": "knnVector",
					"dimensions": 1536,
					"similarity": "cosine"
				}
			}
		}
	}
}`

func TestDefaultIndexDefinitionJSON(t *testing.T) {
	b, err := json.Marshal(DefaultIndexDefinition())
	require.NoError(t, err)
	assert.JSONEq(t, indexLiteral, string(b))
}

func TestIndexDefinitionBSON(t *testing.T) {
	def := NewIndexDefinition("other", 768, "dotProduct")

	raw, err := bson.Marshal(def)
	require.NoError(t, err)

	var got bson.M
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.Equal(t, "other", got["name"])

	field, err := bson.Raw(raw).LookupErr("definition", "mappings", "fields", "embedding", "dimensions")
	require.NoError(t, err)
	assert.Equal(t, int64(768), field.AsInt64())

	sim, err := bson.Raw(raw).LookupErr("definition", "mappings", "fields", "embedding", "similarity")
	require.NoError(t, err)
	assert.Equal(t, "dotProduct", sim.StringValue())
}
