package api_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
)

type sliceStream struct {
	chunks []string
	err    error
	pos    int
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestStreamReadAll(t *testing.T) {
	stream := &sliceStream{chunks: []string{"Hello ", "there! ", "How can I help?"}}

	out, err := api.StreamReadAll(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello there! How can I help?", out)
	assert.True(t, stream.closed)
}

func TestStreamReadAllError(t *testing.T) {
	boom := errors.New("connection reset")
	stream := &sliceStream{chunks: []string{"partial "}, err: boom}

	out, err := api.StreamReadAll(context.Background(), stream)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial ", out)
	assert.True(t, stream.closed)
}

func TestStreamReadAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := api.StreamReadAll(ctx, &blockingStream{})
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingStream struct{}

func (blockingStream) Recv() (string, error) {
	select {}
}

func (blockingStream) Close() error { return nil }

func TestChatMessageJSON(t *testing.T) {
	msg := api.AssistantMessage("Do you need help?")
	require.Equal(t, "assistant", msg.Role.String())

	data, err := msg.Role.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"assistant"`, string(data))

	_, err = api.ParseRole("system")
	assert.Error(t, err)
}
