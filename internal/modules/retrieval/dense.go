package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/metrics"
	"github.com/alan-mat/docchat/internal/provider"
	"github.com/alan-mat/docchat/internal/vector"
)

const Descriptor = "retrieval.Semantic"

const (
	OpDense = "dense"

	ArgCollection = "collection_name"
	ArgIndexName  = "index_name"
	ArgTopK       = "top_k"

	DefaultTopK = 2
)

type SemanticExecutor struct {
	Embedder  provider.Embedder
	operators map[string]executor.OperatorFunc
}

func NewSemanticExecutor(embedder provider.Embedder) *SemanticExecutor {
	e := &SemanticExecutor{
		Embedder: embedder,
	}
	e.operators = map[string]executor.OperatorFunc{
		OpDense: e.denseRetrieval,
	}
	return e
}

func (e *SemanticExecutor) Execute(ctx context.Context, p *executor.Params) *executor.Result {
	return executor.Dispatch(ctx, Descriptor, OpDense, e.operators, p)
}

func (e *SemanticExecutor) denseRetrieval(ctx context.Context, p *executor.Params) (map[string]any, error) {
	// 'dense' requires following parameter args:
	// collection_name - name of the collection to use for the vector store
	//
	// Optional
	// top_k - number of chunks to retrieve
	// index_name - search index to query
	collectionName, err := executor.GetTypedArg[string](p, ArgCollection)
	if err != nil {
		return nil, err
	}
	topK, err := executor.GetOptionalArg(p, ArgTopK, DefaultTopK)
	if err != nil {
		return nil, err
	}
	indexName, err := executor.GetOptionalArg(p, ArgIndexName, "")
	if err != nil {
		return nil, err
	}

	if p.VectorStore == nil {
		return nil, fmt.Errorf("operator failed: vector store is not initialized")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	started := time.Now()
	vec, err := e.Embedder.EmbedQuery(ctx, p.GetQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to embed query '%s': %w", p.GetQuery(), err)
	}

	docs, err := p.VectorStore.Query(ctx, vector.NewQueryParams(collectionName, vec,
		vector.WithPayload(true),
		vector.WithLimit(uint(topK)),
		vector.WithIndex(indexName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get results for query '%s': %w", p.GetQuery(), err)
	}
	metrics.Get().RetrievalDuration.Observe(time.Since(started).Seconds())

	return map[string]any{
		executor.ValueContextDocs: docs,
	}, nil
}
