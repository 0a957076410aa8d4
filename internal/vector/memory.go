package vector

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/alan-mat/docchat/internal/api"
)

// MemoryStore is a brute force cosine store for tests and offline runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Point
	indexes     map[string][]IndexDefinition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*Point),
		indexes:     make(map[string][]IndexDefinition),
	}
}

func (s *MemoryStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collectionName]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, collection Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection.Name]; !ok {
		s.collections[collection.Name] = make(map[string]*Point)
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collectionName]
	if !ok {
		coll = make(map[string]*Point)
		s.collections[collectionName] = coll
	}
	for _, p := range points {
		c := *p
		coll[p.ID] = &c
	}
	return nil
}

func (s *MemoryStore) CreateSearchIndex(ctx context.Context, collectionName string, def IndexDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.indexes[collectionName] {
		if d.Name == def.Name {
			return nil
		}
	}
	s.indexes[collectionName] = append(s.indexes[collectionName], def)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, collectionName string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.collections[collectionName])), nil
}

func (s *MemoryStore) Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[params.collection]
	if !ok {
		return nil, fmt.Errorf("collection '%s' does not exist", params.collection)
	}

	type hit struct {
		p     *Point
		score float64
	}
	hits := make([]hit, 0, len(coll))
	for _, p := range coll {
		hits = append(hits, hit{p: p, score: cosine(params.query, p.Vector)})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.p.ID, b.p.ID)
	})

	if params.limit > 0 && len(hits) > int(params.limit) {
		hits = hits[:params.limit]
	}

	docs := make([]*api.ScoredDocument, 0, len(hits))
	for _, h := range hits {
		meta := h.p.Metadata
		if !params.withPayload {
			meta = nil
		}
		docs = append(docs, scoredFromMetadata(h.p.ID, h.p.Text, h.score, meta))
	}
	return docs, nil
}

func (s *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
