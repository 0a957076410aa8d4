package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/alan-mat/docchat/internal/api"
)

const (
	DefaultChatModel      = "gemini-2.0-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"
)

type GeminiProvider struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	vectorDims *int32
}

type Option func(*GeminiProvider)

func WithChatModel(model string) Option {
	return func(p *GeminiProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(p *GeminiProvider) {
		if model != "" {
			p.embedModel = model
		}
	}
}

func WithDimensions(dims int) Option {
	return func(p *GeminiProvider) {
		if dims > 0 {
			d := int32(dims)
			p.vectorDims = &d
		}
	}
}

func New(ctx context.Context, apiKey string, opts ...Option) (*GeminiProvider, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	dims := int32(1536)
	p := &GeminiProvider{
		client:     c,
		chatModel:  DefaultChatModel,
		embedModel: DefaultEmbeddingModel,
		vectorDims: &dims,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p GeminiProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	config := &genai.GenerateContentConfig{
		Temperature: &req.Temperature,
	}

	modelName := p.chatModel
	if req.ModelName != "" {
		modelName = req.ModelName
	}

	i := p.client.Models.GenerateContentStream(ctx, modelName, genai.Text(req.Prompt), config)
	return newCompletionStream(i), nil
}

func (p GeminiProvider) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("completion request failed: missing parameter 'query' in request")
	}

	contents := parseRequestHistory(req.History)
	contents = append(contents, genai.NewContentFromText(req.Query, genai.RoleUser))

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, "")
	}
	if req.Temperature != nil {
		config.Temperature = req.Temperature
	}

	modelName := p.chatModel
	if req.ModelName != "" {
		modelName = req.ModelName
	}

	i := p.client.Models.GenerateContentStream(ctx, modelName, contents, config)
	return newCompletionStream(i), nil
}

func (p GeminiProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	config := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: p.vectorDims,
	}

	res, err := p.client.Models.EmbedContent(ctx, p.embedModel, genai.Text(q), config)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embed request failed: empty response")
	}

	return res.Embeddings[0].Values, nil
}

func (p GeminiProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		contents := make([]*genai.Content, 0, len(doc.Chunks))
		for _, chunk := range doc.Chunks {
			contents = append(contents, genai.NewContentFromText(chunk, genai.RoleUser))
		}

		config := &genai.EmbedContentConfig{
			TaskType:             "RETRIEVAL_DOCUMENT",
			Title:                doc.Title,
			OutputDimensionality: p.vectorDims,
		}

		res, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		values := make([][]float32, 0, len(res.Embeddings))
		for _, e := range res.Embeddings {
			values = append(values, e.Values)
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:    doc.Title,
			Chunks:   doc.Chunks,
			IDs:      doc.IDs,
			Metadata: doc.Metadata,
			Values:   values,
		})
	}

	return embeddings, nil
}

func (p GeminiProvider) GetDimensions() uint {
	return uint(*p.vectorDims)
}

func parseRequestHistory(h []*api.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, len(h))
	roleTypes := map[api.ChatMessageRole]genai.Role{
		api.RoleUser:      genai.RoleUser,
		api.RoleAssistant: genai.RoleModel,
	}
	for i, m := range h {
		contents[i] = genai.NewContentFromText(m.Content, roleTypes[m.Role])
	}
	return contents
}

type GeminiCompletionStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func newCompletionStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *GeminiCompletionStream {
	next, stop := iter.Pull2(seq)
	return &GeminiCompletionStream{
		next: next,
		stop: stop,
	}
}

func (s GeminiCompletionStream) Recv() (string, error) {
	res, err, valid := s.next()
	if !valid {
		// iterator is finished
		return "", io.EOF
	}

	if err != nil {
		return "", err
	}

	return res.Text(), nil
}

func (s GeminiCompletionStream) Close() error {
	s.stop()
	return nil
}
