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

// Package ollama streams chat completions from a local ollama server.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/http"
)

const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "gemma3:4b"
)

type OllamaProvider struct {
	client       http.Client
	defaultModel string
}

type chatMsgPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamResponse struct {
	Model   string         `json:"model"`
	Message chatMsgPayload `json:"message"`
	Done    bool           `json:"done"`
	Error   string         `json:"error"`
}

func New(endpoint, model string) *OllamaProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &OllamaProvider{
		client:       http.NewClient(endpoint, http.WithMaxRetries(3)),
		defaultModel: model,
	}
}

func (p OllamaProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	return p.Chat(ctx, api.ChatRequest{
		Query:       req.Prompt,
		ModelName:   req.ModelName,
		Temperature: &req.Temperature,
	})
}

func (p OllamaProvider) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("completion request failed: missing parameter 'query' in request")
	}

	model := p.defaultModel
	if req.ModelName != "" {
		model = req.ModelName
	}

	messages := make([]chatMsgPayload, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMsgPayload{
			Role:    "system",
			Content: req.SystemPrompt,
		})
	}

	for _, cm := range req.History {
		messages = append(messages, chatMsgPayload{
			Role:    cm.Role.String(),
			Content: cm.Content,
		})
	}

	messages = append(messages, chatMsgPayload{
		Role:    "user",
		Content: req.Query,
	})

	requestData := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	if req.Temperature != nil {
		requestData["options"] = map[string]any{"temperature": *req.Temperature}
	}

	respBody, err := p.client.RequestStream(ctx, http.MethodPost, "/api/chat", requestData)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	return NewOllamaCompletionStream(respBody), nil
}

// OllamaCompletionStream decodes the newline delimited JSON returned by
// the chat endpoint.
type OllamaCompletionStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func NewOllamaCompletionStream(body io.ReadCloser) *OllamaCompletionStream {
	return &OllamaCompletionStream{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

func (s OllamaCompletionStream) Recv() (string, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return s.decode(line)
		}
		return "", err
	}
	return s.decode(line)
}

func (s OllamaCompletionStream) decode(line []byte) (string, error) {
	var response streamResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return "", fmt.Errorf("failed to deserialize chat stream response: %w", err)
	}
	if response.Error != "" {
		return "", fmt.Errorf("ollama: %s", response.Error)
	}
	if response.Done && response.Message.Content == "" {
		return "", io.EOF
	}
	return response.Message.Content, nil
}

func (s OllamaCompletionStream) Close() error {
	return s.body.Close()
}
