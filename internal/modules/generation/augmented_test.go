package generation_test

import (
	"context"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/modules/generation"
	"github.com/alan-mat/docchat/internal/provider/echo"
	"github.com/alan-mat/docchat/internal/transport"
)

type wordStream struct{ words []string }

func (s *wordStream) Recv() (string, error) {
	if len(s.words) == 0 {
		return "", io.EOF
	}
	w := s.words[0]
	s.words = s.words[1:]
	return w, nil
}

func (s *wordStream) Close() error { return nil }

type captureLM struct {
	req    api.ChatRequest
	answer []string
}

func (l *captureLM) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	return &wordStream{words: slices.Clone(l.answer)}, nil
}

func (l *captureLM) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	l.req = req
	return &wordStream{words: slices.Clone(l.answer)}, nil
}

func drain(t *testing.T, tr transport.Transport, id string, n int) []*transport.MessageStreamPayload {
	t.Helper()
	ms, err := tr.GetMessageStream(id)
	require.NoError(t, err)
	out := make([]*transport.MessageStreamPayload, 0, n)
	for range n {
		m, err := ms.Recv(context.Background())
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestGenerateWithContext(t *testing.T) {
	lm := &captureLM{answer: []string{"The sky ", "is blue."}}
	tr := transport.NewMemoryTransport()
	ex := generation.NewAugmentedExecutor(lm)

	docs := []*api.ScoredDocument{
		{ID: "c1", Title: "sky.txt", Content: "  The sky is blue.  ", Source: "bucket/sky.txt", Score: 0.9},
	}
	history := []*api.ChatMessage{api.UserMessage("hi"), api.AssistantMessage("Do you need help? ")}

	res := ex.Execute(context.Background(), executor.NewParams("task", "what color is the sky?",
		executor.WithTransport(tr),
		executor.WithArgs(map[string]any{
			executor.ValueContextDocs: docs,
			generation.ArgHistory:     history,
		}),
	))
	require.NoError(t, res.Err)
	assert.Equal(t, "The sky is blue.", res.Values[generation.ValueGenerationResults])

	assert.Equal(t, "what color is the sky?", lm.req.Query)
	assert.Equal(t, history, lm.req.History)
	assert.Contains(t, lm.req.SystemPrompt, "[sky.txt]\nThe sky is blue.\n---")
	assert.Nil(t, lm.req.Temperature)

	// source documents precede the answer
	msgs := drain(t, tr, "task", 3)
	assert.Equal(t, transport.MessageTypeDocument, msgs[0].Type)
	assert.Equal(t, "bucket/sky.txt", msgs[0].Document.Source)
	assert.Equal(t, "The sky ", msgs[1].Content)
	assert.Equal(t, "is blue.", msgs[2].Content)

	// prompt documents are trimmed copies
	assert.Equal(t, "  The sky is blue.  ", docs[0].Content)
}

func TestGenerateWithoutContext(t *testing.T) {
	lm := &captureLM{answer: []string{"No idea."}}
	ex := generation.NewAugmentedExecutor(lm)

	var temp float32 = 0.1
	res := ex.Execute(context.Background(), executor.NewParams("task", "q",
		executor.WithTransport(transport.NewMemoryTransport()),
		executor.WithArgs(map[string]any{generation.ArgTemperature: temp}),
	))
	require.NoError(t, res.Err)
	assert.Contains(t, lm.req.SystemPrompt, "(no documents matched)")
	require.NotNil(t, lm.req.Temperature)
	assert.Equal(t, temp, *lm.req.Temperature)
}

func TestGenerateRequiresTransport(t *testing.T) {
	ex := generation.NewAugmentedExecutor(&captureLM{})
	res := ex.Execute(context.Background(), executor.NewParams("task", "q"))
	assert.ErrorIs(t, res.Err, executor.ErrNoTransport)
}

func TestEmulate(t *testing.T) {
	tr := transport.NewMemoryTransport()
	emulator := echo.New(echo.WithDelay(0), echo.WithPicker(func(int) int { return 2 }))
	ex := generation.NewAugmentedExecutor(nil, generation.WithEmulator(emulator))

	res := ex.Execute(context.Background(), executor.NewParams("task", "What is up?",
		executor.WithTransport(tr),
		executor.WithOperator(generation.OpEmulate),
	))
	require.NoError(t, res.Err)

	out := res.Values[generation.ValueGenerationResults].(string)
	assert.Equal(t, "Do you need help? ", out)

	msgs := drain(t, tr, "task", 4)
	words := make([]string, 0, 4)
	for _, m := range msgs {
		words = append(words, m.Content)
	}
	assert.Equal(t, strings.Fields(echo.Responses[2]), strings.Fields(strings.Join(words, "")))
}
