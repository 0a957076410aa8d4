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

package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/loader"
	"github.com/alan-mat/docchat/internal/metrics"
	"github.com/alan-mat/docchat/internal/provider"
	"github.com/alan-mat/docchat/internal/splitter"
	"github.com/alan-mat/docchat/internal/vector"
)

const Descriptor = "indexing.Simple"

// Operators, in the order the init workflow runs them.
const (
	OpConfigure   = "configure"
	OpLoad        = "load"
	OpIndex       = "index"
	OpSearchIndex = "search_index"
)

// Argument and value names.
const (
	ArgCollection = "collection_name"
	ArgIndexName  = "index_name"
	ArgSimilarity = "similarity"

	ValueDocuments       = "documents"
	ValueDocumentsLoaded = "documents_loaded"
	ValueChunksIndexed   = "chunks_indexed"
	ValueIndexName       = "index_name"
)

var ErrNoVectorStore = errors.New("vector store is not initialized")

type Executor struct {
	Loader   loader.Loader
	Splitter *splitter.Splitter
	Embedder provider.Embedder

	operators map[string]executor.OperatorFunc
}

func New(l loader.Loader, s *splitter.Splitter, e provider.Embedder) *Executor {
	ex := &Executor{
		Loader:   l,
		Splitter: s,
		Embedder: e,
	}
	ex.operators = map[string]executor.OperatorFunc{
		OpConfigure:   ex.configure,
		OpLoad:        ex.load,
		OpIndex:       ex.index,
		OpSearchIndex: ex.searchIndex,
	}
	return ex
}

func (e *Executor) Execute(ctx context.Context, p *executor.Params) *executor.Result {
	return executor.Dispatch(ctx, Descriptor, OpIndex, e.operators, p)
}

func (e *Executor) configure(ctx context.Context, p *executor.Params) (map[string]any, error) {
	p.Status(ctx, OpConfigure, "Configuring chunking and selecting embedding model...")

	if e.Splitter == nil {
		return nil, fmt.Errorf("no splitter configured")
	}
	if e.Embedder == nil {
		return nil, fmt.Errorf("no embedding model configured")
	}

	p.Status(ctx, OpConfigure, "Chunking and embedding model configured!")
	return map[string]any{
		"chunk_size":    e.Splitter.ChunkSize,
		"chunk_overlap": e.Splitter.ChunkOverlap,
		"dimensions":    e.Embedder.GetDimensions(),
	}, nil
}

func (e *Executor) load(ctx context.Context, p *executor.Params) (map[string]any, error) {
	if e.Loader == nil {
		return nil, fmt.Errorf("no loader configured")
	}

	p.Status(ctx, OpLoad, "Loading files...")
	docs, err := e.Loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	metrics.Get().DocumentsLoaded.Add(float64(len(docs)))
	p.Status(ctx, OpLoad, "Files loaded!")

	return map[string]any{
		ValueDocuments:       docs,
		ValueDocumentsLoaded: len(docs),
	}, nil
}

func (e *Executor) index(ctx context.Context, p *executor.Params) (map[string]any, error) {
	// 'index' requires following parameter args:
	// documents - loaded documents, type []*api.Document
	// collection_name - name of the collection to upsert into
	docs, err := executor.GetTypedArg[[]*api.Document](p, ValueDocuments)
	if err != nil {
		return nil, err
	}
	collectionName, err := executor.GetTypedArg[string](p, ArgCollection)
	if err != nil {
		return nil, err
	}
	similarity, err := executor.GetOptionalArg(p, ArgSimilarity, vector.DefaultSimilarity)
	if err != nil {
		return nil, err
	}
	if p.VectorStore == nil {
		return nil, ErrNoVectorStore
	}

	p.Status(ctx, OpIndex, "Instantiating Vector Store...")
	exists, err := p.VectorStore.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to communicate with vector store: %w", err)
	}
	if !exists {
		slog.Info("requested collection not found", "name", collectionName)
		err := p.VectorStore.CreateCollection(ctx, vector.Collection{
			Name:       collectionName,
			Dimensions: e.Embedder.GetDimensions(),
			Similarity: similarity,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create collection: %w", err)
		}
		slog.Info("successfully created collection", "name", collectionName)
	}
	p.Status(ctx, OpIndex, "Vector Store instantiated!")

	p.Status(ctx, OpIndex, "Storing as vector embeddings...")
	chunks, err := e.Splitter.SplitDocuments(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("failed to index files: no text found in %d documents", len(docs))
	}

	requests := groupChunks(chunks)
	embeddings, err := e.Embedder.EmbedDocuments(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d documents: %w", len(requests), err)
	}

	points, err := vector.CreatePoints(embeddings)
	if err != nil {
		return nil, err
	}
	if err := p.VectorStore.Upsert(ctx, collectionName, points); err != nil {
		return nil, fmt.Errorf("failed to upsert points to vector store: %w", err)
	}
	metrics.Get().ChunksIndexed.Add(float64(len(points)))
	slog.Info("indexed documents", "documents", len(docs), "chunks", len(points), "collection", collectionName)
	p.Status(ctx, OpIndex, "Vector embeddings stored!")

	return map[string]any{
		ValueChunksIndexed: len(points),
	}, nil
}

func (e *Executor) searchIndex(ctx context.Context, p *executor.Params) (map[string]any, error) {
	collectionName, err := executor.GetTypedArg[string](p, ArgCollection)
	if err != nil {
		return nil, err
	}
	indexName, err := executor.GetOptionalArg(p, ArgIndexName, vector.DefaultIndexName)
	if err != nil {
		return nil, err
	}
	similarity, err := executor.GetOptionalArg(p, ArgSimilarity, vector.DefaultSimilarity)
	if err != nil {
		return nil, err
	}
	if p.VectorStore == nil {
		return nil, ErrNoVectorStore
	}

	p.Status(ctx, OpSearchIndex, "Creating vector search index...")
	def := vector.NewIndexDefinition(indexName, int(e.Embedder.GetDimensions()), similarity)
	if err := p.VectorStore.CreateSearchIndex(ctx, collectionName, def); err != nil {
		return nil, err
	}
	p.Status(ctx, OpSearchIndex, "Search index is building!")

	return map[string]any{
		ValueIndexName: indexName,
	}, nil
}

// groupChunks builds one embedding request per source document, keeping
// the order chunks were produced in.
func groupChunks(chunks []*api.Document) []*api.EmbedDocumentRequest {
	byDoc := make(map[string]*api.EmbedDocumentRequest)
	requests := make([]*api.EmbedDocumentRequest, 0)

	for _, c := range chunks {
		docID := c.MetaString(splitter.MetaDocID)
		req, ok := byDoc[docID]
		if !ok {
			req = &api.EmbedDocumentRequest{Title: c.MetaString(loader.MetaFileName)}
			byDoc[docID] = req
			requests = append(requests, req)
		}
		req.Chunks = append(req.Chunks, c.Text)
		req.IDs = append(req.IDs, c.ID)
		req.Metadata = append(req.Metadata, c.Metadata)
	}
	return requests
}
