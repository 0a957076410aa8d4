package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/alan-mat/docchat/internal/api"
)

const (
	codeNamespaceExists    = 48
	codeIndexAlreadyExists = 68

	disconnectTimeout = 10 * time.Second
)

var ErrMissingConnString = errors.New("missing database connection string")

// AtlasStore keeps chunks in a MongoDB Atlas collection and queries them
// through an Atlas Search index.
type AtlasStore struct {
	client    *mongo.Client
	db        *mongo.Database
	indexName string
	owned     bool
}

type AtlasOption func(*AtlasStore)

func WithIndexName(name string) AtlasOption {
	return func(s *AtlasStore) {
		if name != "" {
			s.indexName = name
		}
	}
}

// NewAtlasStore connects to the cluster and pings the primary.
func NewAtlasStore(ctx context.Context, uri, database string, opts ...AtlasOption) (*AtlasStore, error) {
	if uri == "" {
		return nil, ErrMissingConnString
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewAtlasStoreFromClient(client, database, opts...)
	s.owned = true
	return s, nil
}

// NewAtlasStoreFromClient wraps a connected client. Close will not
// disconnect it.
func NewAtlasStoreFromClient(client *mongo.Client, database string, opts ...AtlasOption) *AtlasStore {
	s := &AtlasStore{
		client:    client,
		db:        client.Database(database),
		indexName: DefaultIndexName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AtlasStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collectionName}})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// CreateCollection creates an empty collection. Dimensions and similarity
// live on the search index, not the collection.
func (s *AtlasStore) CreateCollection(ctx context.Context, collection Collection) error {
	err := s.db.CreateCollection(ctx, collection.Name)
	if err != nil && !hasErrorCode(err, codeNamespaceExists, "NamespaceExists") {
		return err
	}
	return nil
}

func (s *AtlasStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	if len(points) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(points))
	for _, p := range points {
		doc := bson.D{
			{Key: "_id", Value: p.ID},
			{Key: FieldText, Value: p.Text},
			{Key: FieldEmbedding, Value: p.Vector},
			{Key: FieldMetadata, Value: p.Metadata},
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: p.ID}}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	coll := s.db.Collection(collectionName)
	_, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to upsert %d points into '%s': %w", len(points), collectionName, err)
	}
	return nil
}

func (s *AtlasStore) CreateSearchIndex(ctx context.Context, collectionName string, def IndexDefinition) error {
	coll := s.db.Collection(collectionName)
	_, err := coll.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: def.Definition,
		Options:    options.SearchIndexes().SetName(def.Name),
	})
	if err != nil && !isIndexExists(err) {
		return fmt.Errorf("failed to create search index '%s': %w", def.Name, err)
	}
	return nil
}

func (s *AtlasStore) Count(ctx context.Context, collectionName string) (int64, error) {
	return s.db.Collection(collectionName).CountDocuments(ctx, bson.D{})
}

// atlasHit is a single document returned by the search pipeline.
type atlasHit struct {
	ID       string         `bson:"_id"`
	Text     string         `bson:"text"`
	Metadata map[string]any `bson:"metadata"`
	Score    float64        `bson:"score"`
}

func (s *AtlasStore) Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error) {
	pipeline := s.searchPipeline(params)

	cur, err := s.db.Collection(params.collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cur.Close(ctx)

	docs := make([]*api.ScoredDocument, 0)
	for cur.Next(ctx) {
		var hit atlasHit
		if err := cur.Decode(&hit); err != nil {
			return nil, fmt.Errorf("failed to decode search result: %w", err)
		}
		docs = append(docs, scoredFromMetadata(hit.ID, hit.Text, hit.Score, hit.Metadata))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *AtlasStore) searchPipeline(params *QueryParams) mongo.Pipeline {
	index := s.indexName
	if params.index != "" {
		index = params.index
	}

	k := int(params.limit)
	if k <= 0 {
		k = 4
	}

	project := bson.D{
		{Key: "_id", Value: 1},
		{Key: FieldText, Value: 1},
		{Key: "score", Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
	}
	if params.withPayload {
		project = append(project, bson.E{Key: FieldMetadata, Value: 1})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "knnBeta", Value: bson.D{
				{Key: "vector", Value: params.query},
				{Key: "path", Value: FieldEmbedding},
				{Key: "k", Value: k},
			}},
		}}},
		{{Key: "$project", Value: project}},
		{{Key: "$limit", Value: k}},
	}
	return pipeline
}

func (s *AtlasStore) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func isIndexExists(err error) bool {
	if hasErrorCode(err, codeIndexAlreadyExists, "IndexAlreadyExists") {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func hasErrorCode(err error, code int, name string) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == int32(code) || ce.Name == name
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(code)
	}
	return false
}
