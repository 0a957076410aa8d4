package http_test

import (
	"context"
	"encoding/json"
	"errors"
	gohttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/http"
)

func TestRequestRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		n := calls.Add(1)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama", body["model"])
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		if n < 3 {
			w.WriteHeader(gohttp.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := http.NewClient(srv.URL,
		http.WithApiKey("secret"),
		http.WithMaxRetries(3),
		http.WithBackoff(time.Millisecond),
	)
	res, err := c.Request(context.Background(), http.MethodPost, "/api/chat", map[string]any{"model": "llama"})
	require.NoError(t, err)
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequestReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.WriteHeader(gohttp.StatusNotFound)
		w.Write([]byte(`model not found`))
	}))
	defer srv.Close()

	c := http.NewClient(srv.URL)
	_, err := c.Request(context.Background(), http.MethodPost, "/api/chat", nil)

	var statusErr *http.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)
	assert.Equal(t, "model not found", statusErr.Body)
}
