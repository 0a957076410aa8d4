package preretrieval_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/modules/preretrieval"
)

type oneShot struct {
	done bool
	text string
}

func (s *oneShot) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *oneShot) Close() error { return nil }

type promptLM struct {
	answer  string
	prompts []string
}

func (l *promptLM) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	l.prompts = append(l.prompts, req.Prompt)
	return &oneShot{text: l.answer}, nil
}

func (l *promptLM) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	return &oneShot{text: l.answer}, nil
}

func TestCondenseWithoutHistoryIsNoop(t *testing.T) {
	lm := &promptLM{answer: "unused"}
	ex := preretrieval.NewTransformExecutor(lm)

	res := ex.Execute(context.Background(), executor.NewParams("t", "What is Atlas?"))
	require.NoError(t, res.Err)
	assert.Empty(t, res.Values)
	assert.Empty(t, lm.prompts)
}

func TestCondenseUsesHistory(t *testing.T) {
	lm := &promptLM{answer: "  How large is the Atlas free tier?\n"}
	ex := preretrieval.NewTransformExecutor(lm)

	p := executor.NewParams("t", "how large is it?", executor.WithArgs(map[string]any{
		preretrieval.ArgHistory: []*api.ChatMessage{
			api.UserMessage("tell me about the Atlas free tier"),
			api.AssistantMessage("It is a shared cluster."),
		},
	}))

	res := ex.Execute(context.Background(), p)
	require.NoError(t, res.Err)
	assert.Equal(t, "How large is the Atlas free tier?", res.Values[executor.ValueQueryTransformed])
	assert.Equal(t, "how large is it?", res.Values["query_original"])

	require.Len(t, lm.prompts, 1)
	assert.Contains(t, lm.prompts[0], "user: tell me about the Atlas free tier")
	assert.Contains(t, lm.prompts[0], "assistant: It is a shared cluster.")
	assert.Contains(t, lm.prompts[0], "how large is it?")
}

func TestUnknownOperator(t *testing.T) {
	lm := &promptLM{answer: "unused"}
	ex := preretrieval.NewTransformExecutor(lm)

	res := ex.Execute(context.Background(), executor.NewParams("t", "index?", executor.WithOperator("rewrite")))
	var notFound executor.ErrOperatorNotFound
	require.ErrorAs(t, res.Err, &notFound)
	assert.Equal(t, "rewrite", notFound.OperatorName)
	assert.Empty(t, lm.prompts)
}
