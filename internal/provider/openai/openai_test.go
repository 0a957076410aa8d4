package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/provider/openai"
)

type embeddingsBody struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
	Raw        map[string]any
}

func embeddingsServer(t *testing.T, calls *atomic.Int32, seen chan<- embeddingsBody) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		calls.Add(1)

		var raw map[string]any
		var body embeddingsBody
		dec := json.NewDecoder(r.Body)
		require.NoError(t, dec.Decode(&raw))
		data, _ := json.Marshal(raw)
		require.NoError(t, json.Unmarshal(data, &body))
		body.Raw = raw
		if seen != nil {
			seen <- body
		}

		items := make([]string, len(body.Input))
		for i := range body.Input {
			items[i] = fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d,0.5]}`, i, i)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":%q,"data":[%s]}`, body.Model, strings.Join(items, ","))
	}))
}

func TestEmbedQueryUsesAdaWithoutDimensions(t *testing.T) {
	var calls atomic.Int32
	seen := make(chan embeddingsBody, 1)
	srv := embeddingsServer(t, &calls, seen)
	defer srv.Close()

	p := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1"))
	vec, err := p.EmbedQuery(context.Background(), "what is in the bucket?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vec)

	body := <-seen
	assert.Equal(t, "text-embedding-ada-002", body.Model)
	assert.NotContains(t, body.Raw, "dimensions")
	assert.Equal(t, uint(1536), p.GetDimensions())
}

func TestEmbedQuerySendsDimensionsForV3(t *testing.T) {
	var calls atomic.Int32
	seen := make(chan embeddingsBody, 1)
	srv := embeddingsServer(t, &calls, seen)
	defer srv.Close()

	p := openai.New("sk-test",
		openai.WithBaseURL(srv.URL+"/v1"),
		openai.WithEmbeddingModel("text-embedding-3-small"),
		openai.WithDimensions(512),
	)
	_, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)

	body := <-seen
	assert.Equal(t, 512, body.Dimensions)
}

func TestEmbedDocumentsBatches(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingsServer(t, &calls, nil)
	defer srv.Close()

	chunks := make([]string, openai.EmbedMaxInputs+3)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk %d", i)
	}

	p := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1"), openai.WithRateLimit(1000))
	res, err := p.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{
		{Title: "report.pdf", Chunks: chunks},
	})
	require.NoError(t, err)
	require.Len(t, res, 1)

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, res[0].Values, len(chunks))
	assert.Equal(t, "report.pdf", res[0].Title)
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 4)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "assistant", req.Messages[2].Role)
		assert.Equal(t, "and now?", req.Messages[3].Content)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hi", ", ", "human!"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1"))
	stream, err := p.Chat(context.Background(), api.ChatRequest{
		Query:        "and now?",
		SystemPrompt: "be brief",
		History: []*api.ChatMessage{
			api.UserMessage("hello"),
			api.AssistantMessage("Do you need help?"),
		},
	})
	require.NoError(t, err)

	out, err := api.StreamReadAll(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "Hi, human!", out)
}

func TestChatRequiresQuery(t *testing.T) {
	p := openai.New("sk-test")
	_, err := p.Chat(context.Background(), api.ChatRequest{})
	assert.Error(t, err)
}
