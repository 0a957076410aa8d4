package vector

import (
	"context"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/alan-mat/docchat/internal/api"
)

// QdrantStore is a self-hosted alternative to Atlas, mainly for local
// development. Text and metadata are stored as point payload.
type QdrantStore struct {
	client     *qdrant.Client
	host       string
	port       int
	waitUpsert bool
}

func NewQdrantStore(host string, port int) (*QdrantStore, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, err
	}

	s := &QdrantStore{
		client:     c,
		host:       host,
		port:       port,
		waitUpsert: true,
	}
	return s, nil
}

func (s QdrantStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	return s.client.CollectionExists(ctx, collectionName)
}

func (s QdrantStore) CreateCollection(ctx context.Context, collection Collection) error {
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(collection.Dimensions),
			Distance: qdrantDistance(collection.Similarity),
		}),
	})
}

func qdrantDistance(similarity string) qdrant.Distance {
	switch similarity {
	case "euclidean":
		return qdrant.Distance_Euclid
	case "dotProduct":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func (s QdrantStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	if len(points) == 0 {
		return nil
	}

	upsertPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		payload := make(map[string]any, len(point.Metadata)+1)
		for k, v := range point.Metadata {
			payload[FieldMetadata+"."+k] = v
		}
		payload[FieldText] = point.Text

		upsertPoints = append(upsertPoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(point.ID),
			Vectors: qdrant.NewVectors(point.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Wait:           &s.waitUpsert,
		Points:         upsertPoints,
	})
	return err
}

// CreateSearchIndex is a no-op, qdrant indexes points as they are written.
func (s QdrantStore) CreateSearchIndex(ctx context.Context, collectionName string, def IndexDefinition) error {
	return nil
}

func (s QdrantStore) Count(ctx context.Context, collectionName string) (int64, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName,
		Exact:          &exact,
	})
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func (s QdrantStore) Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: params.collection,
		Query:          qdrant.NewQuery(params.query...),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if params.limit > 0 {
		limit := uint64(params.limit)
		queryPoints.Limit = &limit
	}

	res, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, err
	}

	docs := make([]*api.ScoredDocument, 0, len(res))
	for _, sp := range res {
		text := ""
		meta := make(map[string]any)
		for k, v := range sp.Payload {
			if k == FieldText {
				text = v.GetStringValue()
				continue
			}
			if !params.withPayload {
				continue
			}
			key, ok := strings.CutPrefix(k, FieldMetadata+".")
			if !ok {
				continue
			}
			if sv := v.GetStringValue(); sv != "" {
				meta[key] = sv
			}
		}
		docs = append(docs, scoredFromMetadata(sp.Id.GetUuid(), text, float64(sp.Score), meta))
	}
	return docs, nil
}

func (s QdrantStore) Close() error {
	return s.client.Close()
}
