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

package postretrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/provider"
)

const Descriptor = "post.Rerank"

const (
	OpRerank = "rerank"

	ArgTopN      = "top_n"
	ArgThreshold = "threshold"
)

type RerankExecutor struct {
	// Reranker may be nil, in which case context passes through unchanged.
	Reranker  provider.Reranker
	operators map[string]executor.OperatorFunc
}

func NewRerankExecutor(r provider.Reranker) *RerankExecutor {
	e := &RerankExecutor{
		Reranker: r,
	}
	e.operators = map[string]executor.OperatorFunc{
		OpRerank: e.rerank,
	}
	return e
}

func (e *RerankExecutor) Execute(ctx context.Context, p *executor.Params) *executor.Result {
	return executor.Dispatch(ctx, Descriptor, OpRerank, e.operators, p)
}

func (e *RerankExecutor) rerank(ctx context.Context, p *executor.Params) (map[string]any, error) {
	// 'rerank' requires following parameter args:
	// context_docs - slice of scored documents to be used as context
	docs, err := executor.GetOptionalArg[[]*api.ScoredDocument](p, executor.ValueContextDocs, nil)
	if err != nil {
		return nil, err
	}

	if e.Reranker == nil || len(docs) == 0 {
		return map[string]any{}, nil
	}

	// Optional
	// top_n - limit the amount of documents returned after reranking
	topN, err := executor.GetOptionalArg(p, ArgTopN, 0)
	if err != nil {
		return nil, err
	}

	texts := make([]*api.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		if d.Content == "" {
			slog.Warn("malformed retrieved context document: missing content", "id", d.ID)
			continue
		}
		texts = append(texts, d)
	}

	req := api.RerankRequest{
		Query:     p.GetQuery(),
		Documents: texts,
		Limit:     topN,
	}

	// Optional
	// threshold - minimum relevance score to keep a document
	if threshold, err := executor.GetTypedArg[float64](p, ArgThreshold); err == nil {
		req.Threshold = &threshold
	}

	resp, err := e.Reranker.Rerank(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}

	return map[string]any{
		executor.ValueContextDocs:    resp.Documents,
		executor.ValueReplaceContext: true,
	}, nil
}
