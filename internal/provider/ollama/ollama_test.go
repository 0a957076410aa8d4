package ollama_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/provider/ollama"
)

func TestChatStreamsLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		for _, tok := range []string{"Do ", "you ", "need ", "help?"} {
			fmt.Fprintf(w, "{\"model\":\"gemma3:4b\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", tok)
		}
		fmt.Fprint(w, `{"model":"gemma3:4b","message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	p := ollama.New(srv.URL, "")
	stream, err := p.Chat(context.Background(), api.ChatRequest{Query: "hi"})
	require.NoError(t, err)

	out, err := api.StreamReadAll(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "Do you need help?", out)
}

func TestChatStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"model 'nope' not found"}`+"\n")
	}))
	defer srv.Close()

	p := ollama.New(srv.URL, "nope")
	stream, err := p.Chat(context.Background(), api.ChatRequest{Query: "hi"})
	require.NoError(t, err)

	_, err = api.StreamReadAll(context.Background(), stream)
	assert.ErrorContains(t, err, "not found")
}
