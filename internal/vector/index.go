package vector

const (
	DefaultIndexName  = "vector_index"
	DefaultDimensions = 1536
	DefaultSimilarity = "cosine"

	knnVectorType = "knnVector"
)

// IndexDefinition is the search index document sent to the database.
type IndexDefinition struct {
	Name       string     `json:"name" bson:"name"`
	Definition IndexSpecs `json:"definition" bson:"definition"`
}

type IndexSpecs struct {
	Mappings IndexMappings `json:"mappings" bson:"mappings"`
}

type IndexMappings struct {
	Dynamic bool                    `json:"dynamic" bson:"dynamic"`
	Fields  map[string]FieldMapping `json:"fields" bson:"fields"`
}

type FieldMapping struct {
	Type       string `json:"type" bson:"type"`
	Dimensions int    `json:"dimensions" bson:"dimensions"`
	Similarity string `json:"similarity" bson:"similarity"`
}

// NewIndexDefinition maps the embedding field as a knn vector with the given
// size and similarity. Other fields are mapped dynamically.
func NewIndexDefinition(name string, dims int, similarity string) IndexDefinition {
	return IndexDefinition{
		Name: name,
		Definition: IndexSpecs{
			Mappings: IndexMappings{
				Dynamic: true,
				Fields: map[string]FieldMapping{
					FieldEmbedding: {
						Type:       knnVectorType,
						Dimensions: dims,
						Similarity: similarity,
					},
				},
			},
		},
	}
}

// DefaultIndexDefinition returns the index for ada-002 embeddings.
func DefaultIndexDefinition() IndexDefinition {
	return NewIndexDefinition(DefaultIndexName, DefaultDimensions, DefaultSimilarity)
}
