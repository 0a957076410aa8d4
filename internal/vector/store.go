// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
)

var (
	ErrInvalidStoreType      = errors.New("no vector store found for given type")
	ErrFailedStoreInitialize = errors.New("failed to initialise vector store")
)

// Field names of a stored chunk.
const (
	FieldText      = "text"
	FieldEmbedding = "embedding"
	FieldMetadata  = "metadata"
)

type Store interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, collection Collection) error

	Upsert(ctx context.Context, collectionName string, points []*Point) error
	Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error)

	// CreateSearchIndex issues the server side index build. An index that
	// already exists is not an error.
	CreateSearchIndex(ctx context.Context, collectionName string, def IndexDefinition) error
	Count(ctx context.Context, collectionName string) (int64, error)

	Close() error
}

// Target selects the database a store connects to. It is filled per
// session from the form fields.
type Target struct {
	ConnString string
	Database   string
	IndexName  string
}

// NewStore creates the configured store type.
func NewStore(ctx context.Context, conf config.VectorStoreConfig, target Target) (Store, error) {
	switch conf.Type {
	case config.VectorStoreAtlas, "":
		store, err := NewAtlasStore(ctx, target.ConnString, target.Database, WithIndexName(target.IndexName))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedStoreInitialize, err)
		}
		return store, nil
	case config.VectorStoreQdrant:
		store, err := NewQdrantStore(conf.Qdrant.Host, conf.Qdrant.Port)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedStoreInitialize, err)
		}
		return store, nil
	case config.VectorStoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidStoreType, conf.Type)
	}
}

type Collection struct {
	Name       string
	Dimensions uint
	Similarity string
}

type Point struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// CreatePoints flattens document embeddings into points. Chunks without
// an id get a random one.
func CreatePoints(docs []*api.DocumentEmbedding) ([]*Point, error) {
	points := make([]*Point, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Values) != len(doc.Chunks) {
			return nil, fmt.Errorf("document '%s' has %d chunks but %d vectors", doc.Title, len(doc.Chunks), len(doc.Values))
		}

		for i := range len(doc.Chunks) {
			id := ""
			if i < len(doc.IDs) {
				id = doc.IDs[i]
			}
			if id == "" {
				id = uuid.NewString()
			}

			meta := map[string]any{}
			if i < len(doc.Metadata) && doc.Metadata[i] != nil {
				meta = doc.Metadata[i]
			}

			points = append(points, &Point{
				ID:       id,
				Vector:   doc.Values[i],
				Text:     doc.Chunks[i],
				Metadata: meta,
			})
		}
	}
	return points, nil
}

type QueryParams struct {
	collection  string
	index       string
	query       []float32
	withPayload bool
	limit       uint
}

type QueryParamsOption func(*QueryParams)

func NewQueryParams(collection string, query []float32, opts ...QueryParamsOption) *QueryParams {
	qp := &QueryParams{
		collection:  collection,
		query:       query,
		withPayload: true,
		limit:       0,
	}

	for _, opt := range opts {
		opt(qp)
	}
	return qp
}

func WithPayload(w bool) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.withPayload = w
	}
}

func WithLimit(limit uint) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.limit = limit
	}
}

// WithIndex overrides the store's search index for one query.
func WithIndex(name string) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.index = name
	}
}

func (qp *QueryParams) Collection() string { return qp.collection }
func (qp *QueryParams) Limit() uint        { return qp.limit }

func scoredFromMetadata(id, text string, score float64, meta map[string]any) *api.ScoredDocument {
	doc := &api.ScoredDocument{
		ID:      id,
		Content: text,
		Score:   score,
	}
	if v, ok := meta["file_name"].(string); ok {
		doc.Title = v
	}
	if v, ok := meta["file_path"].(string); ok {
		doc.Source = v
	}
	return doc
}
