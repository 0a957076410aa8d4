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

package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/provider/cohere"
	"github.com/alan-mat/docchat/internal/provider/echo"
	"github.com/alan-mat/docchat/internal/provider/gemini"
	"github.com/alan-mat/docchat/internal/provider/ollama"
	"github.com/alan-mat/docchat/internal/provider/openai"
	"github.com/alan-mat/docchat/internal/registry"
)

var (
	ErrInvalidLMProviderType    = errors.New("no lmprovider found for given type")
	ErrInvalidEmbedProviderType = errors.New("no embeddings provider found for given type")
	ErrInvalidRerankerType      = errors.New("no reranker found for given type")
	ErrMissingCredentials       = errors.New("missing provider credentials")
)

const (
	OpenAI = "openai"
	Gemini = "gemini"
	Cohere = "cohere"
	Ollama = "ollama"
	Echo   = "echo"
)

type LMProvider interface {
	Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error)
	Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error)
}

type Embedder interface {
	EmbedQuery(ctx context.Context, q string) ([]float32, error)
	EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error)
	GetDimensions() uint
}

type Reranker interface {
	Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error)
}

// Credentials carries the API keys a session or process can supply.
type Credentials struct {
	OpenAIKey      string
	GeminiKey      string
	CohereKey      string
	OllamaEndpoint string
}

type Options struct {
	Model             string
	Dimensions        int
	RequestsPerSecond float64
	Threshold         float64
}

type (
	LMFactory       func(context.Context, Credentials, Options) (LMProvider, error)
	EmbedderFactory func(context.Context, Credentials, Options) (Embedder, error)
	RerankerFactory func(context.Context, Credentials, Options) (Reranker, error)
)

var (
	lmProviders = registry.New[string, LMFactory]()
	embedders   = registry.New[string, EmbedderFactory]()
	rerankers   = registry.New[string, RerankerFactory]()
)

func init() {
	lmProviders.RegisterMany(
		registry.Entry[string, LMFactory]{Key: OpenAI, Value: func(_ context.Context, c Credentials, o Options) (LMProvider, error) {
			if c.OpenAIKey == "" {
				return nil, fmt.Errorf("%w: openai api key", ErrMissingCredentials)
			}
			return openai.New(c.OpenAIKey, openai.WithChatModel(o.Model)), nil
		}},
		registry.Entry[string, LMFactory]{Key: Gemini, Value: func(ctx context.Context, c Credentials, o Options) (LMProvider, error) {
			if c.GeminiKey == "" {
				return nil, fmt.Errorf("%w: gemini api key", ErrMissingCredentials)
			}
			p, err := gemini.New(ctx, c.GeminiKey, gemini.WithChatModel(o.Model))
			if err != nil {
				return nil, err
			}
			return p, nil
		}},
		registry.Entry[string, LMFactory]{Key: Ollama, Value: func(_ context.Context, c Credentials, o Options) (LMProvider, error) {
			return ollama.New(c.OllamaEndpoint, o.Model), nil
		}},
		registry.Entry[string, LMFactory]{Key: Echo, Value: func(context.Context, Credentials, Options) (LMProvider, error) {
			return echo.New(), nil
		}},
	)

	embedders.RegisterMany(
		registry.Entry[string, EmbedderFactory]{Key: OpenAI, Value: func(_ context.Context, c Credentials, o Options) (Embedder, error) {
			if c.OpenAIKey == "" {
				return nil, fmt.Errorf("%w: openai api key", ErrMissingCredentials)
			}
			return openai.New(c.OpenAIKey,
				openai.WithEmbeddingModel(o.Model),
				openai.WithDimensions(o.Dimensions),
				openai.WithRateLimit(o.RequestsPerSecond),
			), nil
		}},
		registry.Entry[string, EmbedderFactory]{Key: Gemini, Value: func(ctx context.Context, c Credentials, o Options) (Embedder, error) {
			if c.GeminiKey == "" {
				return nil, fmt.Errorf("%w: gemini api key", ErrMissingCredentials)
			}
			p, err := gemini.New(ctx, c.GeminiKey,
				gemini.WithEmbeddingModel(o.Model),
				gemini.WithDimensions(o.Dimensions),
			)
			if err != nil {
				return nil, err
			}
			return p, nil
		}},
	)

	rerankers.Register(Cohere, func(_ context.Context, c Credentials, o Options) (Reranker, error) {
		if c.CohereKey == "" {
			return nil, fmt.Errorf("%w: cohere api key", ErrMissingCredentials)
		}
		return cohere.New(c.CohereKey, o.Threshold), nil
	})
}

func NewLMProvider(ctx context.Context, name string, creds Credentials, opts Options) (LMProvider, error) {
	f, ok := lmProviders.Get(strings.ToLower(name))
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidLMProviderType, name)
	}
	return f(ctx, creds, opts)
}

func NewEmbedder(ctx context.Context, name string, creds Credentials, opts Options) (Embedder, error) {
	f, ok := embedders.Get(strings.ToLower(name))
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidEmbedProviderType, name)
	}
	return f(ctx, creds, opts)
}

func NewReranker(ctx context.Context, name string, creds Credentials, opts Options) (Reranker, error) {
	f, ok := rerankers.Get(strings.ToLower(name))
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidRerankerType, name)
	}
	return f(ctx, creds, opts)
}

// LMProviders lists the registered language model provider names.
func LMProviders() []string {
	return lmProviders.Sorted(strings.Compare)
}
