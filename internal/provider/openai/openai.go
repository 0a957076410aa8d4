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

package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/alan-mat/docchat/internal/api"
)

const (
	// EmbedMaxInputs is the largest number of inputs accepted by a single
	// embeddings request.
	EmbedMaxInputs = 2048

	DefaultEmbeddingModel = string(openai.AdaEmbeddingV2)
	DefaultDimensions     = 1536
	DefaultChatModel      = openai.GPT4oMini
)

var ErrEmptyEmbedding = errors.New("embeddings response contained no vectors")

type OpenAIProvider struct {
	client *openai.Client

	chatModel  string
	embedModel string
	vectorDims int
	limiter    *rate.Limiter
	baseURL    string
}

type Option func(*OpenAIProvider)

func WithChatModel(model string) Option {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.embedModel = model
		}
	}
}

func WithDimensions(dims int) Option {
	return func(p *OpenAIProvider) {
		if dims > 0 {
			p.vectorDims = dims
		}
	}
}

// WithRateLimit caps embedding requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(p *OpenAIProvider) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *OpenAIProvider) {
		p.baseURL = url
	}
}

func New(apiKey string, opts ...Option) *OpenAIProvider {
	p := &OpenAIProvider{
		chatModel:  DefaultChatModel,
		embedModel: DefaultEmbeddingModel,
		vectorDims: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(p)
	}

	config := openai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		config.BaseURL = p.baseURL
	}
	p.client = openai.NewClientWithConfig(config)
	return p
}

func (p OpenAIProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model:       p.chatModel,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
		Stream: true,
	}

	if req.ModelName != "" {
		openaiReq.Model = req.ModelName
	}

	s, err := p.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	return &OpenAIChatStream{stream: s}, nil
}

func (p OpenAIProvider) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("completion request failed: missing parameter 'query' in request")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	messages = append(messages, parseRequestHistory(req.History)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Query,
	})

	openaiReq := openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: messages,
		Stream:   true,
	}
	if req.ModelName != "" {
		openaiReq.Model = req.ModelName
	}
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}

	s, err := p.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("chat streaming request failed: %w", err)
	}

	return &OpenAIChatStream{stream: s}, nil
}

func (p OpenAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds the chunks of every document, splitting them into
// requests of at most EmbedMaxInputs inputs.
func (p OpenAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	docEmbeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		vals := make([][]float32, 0, len(doc.Chunks))
		for start := 0; start < len(doc.Chunks); start += EmbedMaxInputs {
			end := min(start+EmbedMaxInputs, len(doc.Chunks))

			batch, err := p.embed(ctx, doc.Chunks[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
			}
			vals = append(vals, batch...)
		}

		docEmbeddings = append(docEmbeddings, &api.DocumentEmbedding{
			Title:    doc.Title,
			Chunks:   doc.Chunks,
			IDs:      doc.IDs,
			Metadata: doc.Metadata,
			Values:   vals,
		})
	}

	return docEmbeddings, nil
}

func (p OpenAIProvider) GetDimensions() uint {
	return uint(p.vectorDims)
}

func (p OpenAIProvider) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	openaiReq := &openai.EmbeddingRequestStrings{
		Input:          inputs,
		Model:          openai.EmbeddingModel(p.embedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	// ada-002 rejects the dimensions parameter
	if strings.HasPrefix(p.embedModel, "text-embedding-3") {
		openaiReq.Dimensions = p.vectorDims
	}

	res, err := p.client.CreateEmbeddings(ctx, openaiReq)
	if err != nil {
		return nil, err
	}
	if len(res.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: sent %d inputs, received %d", ErrEmptyEmbedding, len(inputs), len(res.Data))
	}

	vals := make([][]float32, len(res.Data))
	for i, e := range res.Data {
		idx := e.Index
		if idx < 0 || idx >= len(vals) {
			idx = i
		}
		vals[idx] = e.Embedding
	}
	return vals, nil
}

func parseRequestHistory(h []*api.ChatMessage) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, len(h))
	for i, m := range h {
		msgs[i] = openai.ChatCompletionMessage{
			Role:    m.Role.String(),
			Content: m.Content,
		}
	}
	return msgs
}

type OpenAIChatStream struct {
	stream *openai.ChatCompletionStream
}

func (s OpenAIChatStream) Recv() (string, error) {
	for {
		res, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}

		// usage chunks carry no choices
		if len(res.Choices) == 0 {
			continue
		}
		return res.Choices[0].Delta.Content, nil
	}
}

func (s OpenAIChatStream) Close() error {
	return s.stream.Close()
}
