// Package rag assembles the indexing and chat workflows for a session's
// settings and runs them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/loader"
	"github.com/alan-mat/docchat/internal/modules/generation"
	"github.com/alan-mat/docchat/internal/modules/indexing"
	"github.com/alan-mat/docchat/internal/modules/postretrieval"
	"github.com/alan-mat/docchat/internal/modules/preretrieval"
	"github.com/alan-mat/docchat/internal/modules/retrieval"
	"github.com/alan-mat/docchat/internal/provider"
	"github.com/alan-mat/docchat/internal/splitter"
	"github.com/alan-mat/docchat/internal/transport"
	"github.com/alan-mat/docchat/internal/vector"
)

const (
	WorkflowInit = "docchat.init"
	WorkflowChat = "docchat.chat"
)

var ErrNotInitialized = errors.New("documents have not been indexed for this session")

type (
	LoaderFactory   func(ctx context.Context, s config.Settings) (loader.Loader, error)
	EmbedderFactory func(ctx context.Context, s config.Settings) (provider.Embedder, error)
	LMFactory       func(ctx context.Context, s config.Settings) (provider.LMProvider, error)
	RerankerFactory func(ctx context.Context, s config.Settings) (provider.Reranker, error)
	StoreFactory    func(ctx context.Context, s config.Settings) (vector.Store, error)
)

// Pipeline builds and runs workflows. It is safe for concurrent use and
// keeps up to maxStores idle vector stores, one per connection target.
type Pipeline struct {
	conf      config.RAGConfig
	transport transport.Transport

	newLoader   LoaderFactory
	newEmbedder EmbedderFactory
	newLM       LMFactory
	newReranker RerankerFactory
	newStore    StoreFactory

	mu        sync.Mutex
	stores    map[string]*cachedStore
	maxStores int
}

type cachedStore struct {
	vector.Store
	refs     int
	lastUsed time.Time
}

type Option func(*Pipeline)

func WithLoader(f LoaderFactory) Option {
	return func(p *Pipeline) { p.newLoader = f }
}

func WithEmbedder(f EmbedderFactory) Option {
	return func(p *Pipeline) { p.newEmbedder = f }
}

func WithLM(f LMFactory) Option {
	return func(p *Pipeline) { p.newLM = f }
}

func WithReranker(f RerankerFactory) Option {
	return func(p *Pipeline) { p.newReranker = f }
}

// WithStore replaces how vector stores are opened. Returned stores are
// cached by connection target like the default ones.
func WithStore(f StoreFactory) Option {
	return func(p *Pipeline) { p.newStore = f }
}

// New returns a pipeline for conf that reports progress through t.
func New(conf *config.Config, t transport.Transport, opts ...Option) *Pipeline {
	p := &Pipeline{
		conf:      conf.RAG,
		transport: t,
		stores:    make(map[string]*cachedStore),
		maxStores: conf.VectorStore.MaxOpen,
	}
	if p.maxStores <= 0 {
		p.maxStores = 1
	}

	creds := func(s config.Settings) provider.Credentials {
		return provider.Credentials{
			OpenAIKey:      s.APIKey,
			GeminiKey:      conf.Keys.Gemini,
			CohereKey:      conf.Keys.Cohere,
			OllamaEndpoint: conf.Keys.OllamaEndpoint,
		}
	}

	p.newLoader = func(ctx context.Context, s config.Settings) (loader.Loader, error) {
		return loader.NewGCSLoader(ctx, loader.GCSConfig{
			ProjectID:   s.ProjectID,
			AccessToken: s.AccessToken,
			Path:        s.Bucket,
		}, loader.Options{
			Recursive:    conf.Loader.Recursive,
			MaxFileBytes: conf.Loader.MaxFileBytes,
			Exclude:      conf.Loader.Exclude,
			Concurrency:  conf.Loader.Concurrency,
		})
	}
	p.newEmbedder = func(ctx context.Context, s config.Settings) (provider.Embedder, error) {
		return provider.NewEmbedder(ctx, conf.RAG.EmbeddingProvider, creds(s), provider.Options{
			Model:             conf.RAG.EmbeddingModel,
			Dimensions:        conf.RAG.Dimensions,
			RequestsPerSecond: conf.RAG.EmbedRequestsPerSecond,
		})
	}
	p.newLM = func(ctx context.Context, s config.Settings) (provider.LMProvider, error) {
		return provider.NewLMProvider(ctx, conf.RAG.LLMProvider, creds(s), provider.Options{
			Model: conf.RAG.LLMModel,
		})
	}
	p.newReranker = func(ctx context.Context, s config.Settings) (provider.Reranker, error) {
		return provider.NewReranker(ctx, provider.Cohere, creds(s), provider.Options{
			Threshold: conf.RAG.RerankThreshold,
		})
	}
	p.newStore = func(ctx context.Context, s config.Settings) (vector.Store, error) {
		return vector.NewStore(ctx, conf.VectorStore, vector.Target{
			ConnString: s.ConnString,
			Database:   s.Database,
			IndexName:  conf.RAG.IndexName,
		})
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases every cached vector store.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, cs := range p.stores {
		if err := cs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close vector store '%s': %w", storeName(key), err))
		}
		delete(p.stores, key)
	}
	return errors.Join(errs...)
}

// store returns the cached store for the session's target, opening it if
// needed. The caller must call release once it is done with the store.
func (p *Pipeline) store(ctx context.Context, s config.Settings) (vs vector.Store, release func(), err error) {
	key := s.ConnString + "|" + s.Database

	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.stores[key]
	if !ok {
		opened, err := p.newStore(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		cs = &cachedStore{Store: opened}
		p.stores[key] = cs
	}
	cs.refs++

	var once sync.Once
	release = func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			cs.refs--
			cs.lastUsed = time.Now()
			p.evict()
		})
	}
	return cs.Store, release, nil
}

// evict closes the least recently used idle stores until at most maxStores
// remain. Stores in use are never closed. p.mu must be held.
func (p *Pipeline) evict() {
	for len(p.stores) > p.maxStores {
		var (
			oldest string
			found  bool
		)
		for key, cs := range p.stores {
			if cs.refs > 0 {
				continue
			}
			if !found || cs.lastUsed.Before(p.stores[oldest].lastUsed) {
				oldest, found = key, true
			}
		}
		if !found {
			return
		}

		if err := p.stores[oldest].Close(); err != nil {
			slog.Warn("failed to close idle vector store", "store", storeName(oldest), "err", err)
		}
		delete(p.stores, oldest)
		slog.Debug("closed idle vector store", "store", storeName(oldest))
	}
}

// storeName strips the connection string, which may carry credentials.
func storeName(key string) string {
	_, db, _ := strings.Cut(key, "|")
	return db
}

type InitResult struct {
	DocumentsLoaded int
	ChunksIndexed   int
	IndexName       string
}

// Init loads the bucket's files, stores their embeddings in the
// session's collection and requests the search index.
func (p *Pipeline) Init(ctx context.Context, taskID string, s config.Settings) (*InitResult, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}

	l, err := p.newLoader(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader for '%s': %w", s.Bucket, err)
	}
	sp, err := splitter.New(p.conf.ChunkSize, p.conf.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	emb, err := p.newEmbedder(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding model: %w", err)
	}
	vs, release, err := p.store(ctx, s)
	if err != nil {
		return nil, err
	}
	defer release()

	wf := InitWorkflow(indexing.New(l, sp, emb), p.conf, s)
	params := executor.NewParams(taskID, "",
		executor.WithTransport(p.transport),
		executor.WithVectorStore(vs),
	)

	res := wf.Execute(ctx, params)
	if res.Err != nil {
		return nil, res.Err
	}

	out := &InitResult{}
	out.DocumentsLoaded, _ = executor.GetTypedResult[int](res, indexing.ValueDocumentsLoaded)
	out.ChunksIndexed, _ = executor.GetTypedResult[int](res, indexing.ValueChunksIndexed)
	out.IndexName, _ = executor.GetTypedResult[string](res, indexing.ValueIndexName)
	return out, nil
}

type ChatResult struct {
	Answer string
	// Query is the question used for retrieval, after condensing.
	Query   string
	Sources []*api.ScoredDocument
}

// Emulated reports whether chat answers come from the response emulator,
// which needs neither settings nor an index.
func (p *Pipeline) Emulated() bool {
	return p.conf.LLMProvider == provider.Echo
}

// Chat answers query from the session's indexed documents and streams
// the answer to the task's message stream.
func (p *Pipeline) Chat(ctx context.Context, taskID string, s config.Settings, query string, history []*api.ChatMessage) (*ChatResult, error) {
	components := ChatComponents{Emulate: p.Emulated()}
	opts := []executor.ParamOption{executor.WithTransport(p.transport)}

	if !components.Emulate {
		s = s.Normalize()
		if err := s.Validate(); err != nil {
			return nil, err
		}

		lm, err := p.newLM(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to create language model: %w", err)
		}
		emb, err := p.newEmbedder(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding model: %w", err)
		}
		components.LM = lm
		components.Embedder = emb

		if p.conf.Rerank {
			r, err := p.newReranker(ctx, s)
			if err != nil {
				slog.Warn("reranking disabled", "err", err)
			}
			components.Reranker = r
		}

		vs, release, err := p.store(ctx, s)
		if err != nil {
			return nil, err
		}
		defer release()
		opts = append(opts, executor.WithVectorStore(vs))
	}

	args := map[string]any{}
	if len(history) > 0 {
		args[preretrieval.ArgHistory] = history
	}
	opts = append(opts, executor.WithArgs(args))
	params := executor.NewParams(taskID, query, opts...)

	res := ChatWorkflow(components, p.conf, s).Execute(ctx, params)
	if res.Err != nil {
		return nil, res.Err
	}

	out := &ChatResult{Query: query}
	out.Answer, _ = executor.GetTypedResult[string](res, generation.ValueGenerationResults)
	out.Sources, _ = executor.GetTypedResult[[]*api.ScoredDocument](res, executor.ValueContextDocs)
	if q, ok := executor.GetTypedResult[string](res, executor.ValueQueryTransformed); ok && q != "" {
		out.Query = q
	}
	return out, nil
}

// InitWorkflow runs configure, load, index and search_index in order.
func InitWorkflow(ex *indexing.Executor, conf config.RAGConfig, s config.Settings) *executor.Workflow {
	indexName := conf.IndexName
	if indexName == "" {
		indexName = vector.DefaultIndexName
	}
	target := map[string]any{
		indexing.ArgCollection: s.Collection,
		indexing.ArgSimilarity: conf.Similarity,
	}

	return executor.NewWorkflow(WorkflowInit, "load, embed and index the bucket's documents", []executor.WorkflowNode{
		executor.NewWorkflowNode(ex, indexing.OpConfigure, nil),
		executor.NewWorkflowNode(ex, indexing.OpLoad, nil),
		executor.NewWorkflowNode(ex, indexing.OpIndex, target),
		executor.NewWorkflowNode(ex, indexing.OpSearchIndex, map[string]any{
			indexing.ArgCollection: s.Collection,
			indexing.ArgSimilarity: conf.Similarity,
			indexing.ArgIndexName:  indexName,
		}),
	})
}

// ChatComponents are the models a chat workflow is built from. With
// Emulate set only the response emulator runs.
type ChatComponents struct {
	LM       provider.LMProvider
	Embedder provider.Embedder
	Reranker provider.Reranker
	Emulate  bool
}

func ChatWorkflow(c ChatComponents, conf config.RAGConfig, s config.Settings) *executor.Workflow {
	if c.Emulate {
		return executor.NewWorkflow(WorkflowChat, "streamed response emulator", []executor.WorkflowNode{
			executor.NewWorkflowNode(generation.NewAugmentedExecutor(nil), generation.OpEmulate, nil),
		})
	}

	topK := conf.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	nodes := make([]executor.WorkflowNode, 0, 4)
	if conf.Condense {
		nodes = append(nodes, executor.NewWorkflowNode(preretrieval.NewTransformExecutor(c.LM), preretrieval.OpCondense, nil))
	}
	nodes = append(nodes, executor.NewWorkflowNode(retrieval.NewSemanticExecutor(c.Embedder), retrieval.OpDense, map[string]any{
		retrieval.ArgCollection: s.Collection,
		retrieval.ArgIndexName:  conf.IndexName,
		retrieval.ArgTopK:       topK,
	}))
	if c.Reranker != nil {
		nodes = append(nodes, executor.NewWorkflowNode(postretrieval.NewRerankExecutor(c.Reranker), postretrieval.OpRerank, map[string]any{
			postretrieval.ArgTopN:      topK,
			postretrieval.ArgThreshold: conf.RerankThreshold,
		}))
	}
	nodes = append(nodes, executor.NewWorkflowNode(generation.NewAugmentedExecutor(c.LM), generation.OpGenerateWithContext, nil))

	return executor.NewWorkflow(WorkflowChat, "context chat over the indexed documents", nodes)
}
