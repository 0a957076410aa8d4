package generation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/metrics"
	"github.com/alan-mat/docchat/internal/provider"
	"github.com/alan-mat/docchat/internal/provider/echo"
	"github.com/alan-mat/docchat/internal/transport"
)

const Descriptor = "generation.Augmented"

const (
	OpGenerateWithContext = "gen_context"
	OpEmulate             = "emulate"

	ArgHistory     = "history"
	ArgTemperature = "temperature"

	ValueGenerationResults = "generation_results"
)

const (
	promptGenerateWithContext = `You are an AI assistant that answers questions about the user's documents. You have been provided with excerpts from those documents, which you should use to inform and support your answer.

**INSTRUCTIONS:**

1.  Read the provided CONTEXT to understand if it is relevant to the user's QUERY.
2.  Answer the QUERY using the CONTEXT wherever possible and cite the file name of an excerpt when you rely on it.
3.  If the CONTEXT is not relevant to the QUERY, say so and answer from your own knowledge.
4.  Keep the answer concise.

**CONTEXT:**
{{range .Documents}}[{{.Title}}]
{{.Content}}
---
{{else}}(no documents matched)
{{end}}`
)

type AugmentedExecutor struct {
	LM       provider.LMProvider
	Emulator provider.LMProvider

	operators map[string]executor.OperatorFunc

	templateGenerateWithContext *template.Template
}

type Option func(*AugmentedExecutor)

// WithEmulator replaces the streamed response emulator.
func WithEmulator(lm provider.LMProvider) Option {
	return func(e *AugmentedExecutor) {
		e.Emulator = lm
	}
}

func NewAugmentedExecutor(lm provider.LMProvider, opts ...Option) *AugmentedExecutor {
	e := &AugmentedExecutor{
		LM:                          lm,
		Emulator:                    echo.New(),
		templateGenerateWithContext: template.Must(template.New("promptGenerateWithContext").Parse(promptGenerateWithContext)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.operators = map[string]executor.OperatorFunc{
		OpGenerateWithContext: e.generateWithContext,
		OpEmulate:             e.emulate,
	}
	return e
}

func (e *AugmentedExecutor) Execute(ctx context.Context, p *executor.Params) *executor.Result {
	return executor.Dispatch(ctx, Descriptor, OpGenerateWithContext, e.operators, p)
}

type templatePayload struct {
	Documents []*api.ScoredDocument
}

func (e *AugmentedExecutor) generateWithContext(ctx context.Context, p *executor.Params) (map[string]any, error) {
	// 'gen_context' takes the following optional parameter args:
	// context_docs - slice of scored documents to be used as context
	//					(from vector store or after post-retrieval)
	// history - earlier messages of the conversation
	docs, err := executor.GetOptionalArg[[]*api.ScoredDocument](p, executor.ValueContextDocs, nil)
	if err != nil {
		return nil, err
	}
	history, err := executor.GetOptionalArg[[]*api.ChatMessage](p, ArgHistory, nil)
	if err != nil {
		return nil, err
	}
	if e.LM == nil {
		return nil, fmt.Errorf("no language model configured")
	}

	trimmed := make([]*api.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		slog.Debug("got document", "score", d.Score, "title", d.Title)
		c := d.Copy()
		c.Content = strings.TrimSpace(c.Content)
		trimmed = append(trimmed, c)
	}

	var buf bytes.Buffer
	if err := e.templateGenerateWithContext.Execute(&buf, templatePayload{Documents: trimmed}); err != nil {
		return nil, fmt.Errorf("failed to parse prompt template for query '%s': %w", p.GetQuery(), err)
	}

	msgStream, err := p.MessageStream()
	if err != nil {
		slog.Warn("failed to create message stream", "id", p.GetTaskID(), "err", err)
		return nil, err
	}
	transport.SendDocuments(ctx, msgStream, docs)

	req := api.ChatRequest{
		Query:        p.GetQuery(),
		SystemPrompt: buf.String(),
		History:      history,
	}
	if temp, err := executor.GetTypedArg[float32](p, ArgTemperature); err == nil {
		req.Temperature = &temp
	}

	return e.stream(ctx, p, msgStream, e.LM, req)
}

// emulate streams one of the canned answers, word by word.
func (e *AugmentedExecutor) emulate(ctx context.Context, p *executor.Params) (map[string]any, error) {
	msgStream, err := p.MessageStream()
	if err != nil {
		return nil, err
	}
	return e.stream(ctx, p, msgStream, e.Emulator, api.ChatRequest{Query: p.GetQuery()})
}

func (e *AugmentedExecutor) stream(ctx context.Context, p *executor.Params, ms transport.MessageStream, lm provider.LMProvider, req api.ChatRequest) (map[string]any, error) {
	started := time.Now()

	stream, err := lm.Chat(ctx, req)
	if err != nil {
		slog.Warn("error creating chat completion stream, cancelling task", "err", err)
		return nil, err
	}
	defer stream.Close()

	output, err := transport.ProcessCompletionStream(ctx, ms, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to process completion stream: %w", err)
	}
	metrics.Get().GenerationDuration.WithLabelValues(p.Operator).Observe(time.Since(started).Seconds())

	return map[string]any{
		ValueGenerationResults: output,
	}, nil
}
