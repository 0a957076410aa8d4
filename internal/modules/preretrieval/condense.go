package preretrieval

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/executor"
	"github.com/alan-mat/docchat/internal/provider"
)

const Descriptor = "pre.QueryTransform"

const (
	OpCondense = "condense"

	ArgHistory = "history"
)

const promptCondense = `Given a conversation (between Human and Assistant) and a follow up message from Human, rewrite the message to be a standalone question that captures all relevant context from the conversation. Answer only with the standalone question.

<Chat History>
{{range .History}}{{.Role}}: {{.Content}}
{{end}}
<Follow Up Message>
{{.Query}}

<Standalone question>
`

type TransformExecutor struct {
	LM provider.LMProvider

	promptCondense *template.Template
	operators      map[string]executor.OperatorFunc
}

func NewTransformExecutor(lm provider.LMProvider) *TransformExecutor {
	e := &TransformExecutor{
		LM:             lm,
		promptCondense: template.Must(template.New("promptCondense").Parse(promptCondense)),
	}
	e.operators = map[string]executor.OperatorFunc{
		OpCondense: e.condense,
	}
	return e
}

func (e *TransformExecutor) Execute(ctx context.Context, p *executor.Params) *executor.Result {
	return executor.Dispatch(ctx, Descriptor, OpCondense, e.operators, p)
}

type templatePayload struct {
	Query   string
	History []*api.ChatMessage
}

// condense turns a follow up into a standalone question. Without history
// the query is already standalone and nothing is returned.
func (e *TransformExecutor) condense(ctx context.Context, p *executor.Params) (map[string]any, error) {
	history, err := executor.GetOptionalArg[[]*api.ChatMessage](p, ArgHistory, nil)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return map[string]any{}, nil
	}

	return e.transform(ctx, e.promptCondense, templatePayload{Query: p.GetQuery(), History: history})
}

func (e *TransformExecutor) transform(ctx context.Context, tmpl *template.Template, tp templatePayload) (map[string]any, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tp); err != nil {
		return nil, fmt.Errorf("failed to parse prompt template for query '%s': %w", tp.Query, err)
	}

	cs, err := e.LM.Generate(ctx, api.GenerationRequest{
		Prompt:      buf.String(),
		Temperature: 0.2,
	})
	if err != nil {
		slog.Warn("error creating generation completion stream, cancelling task")
		return nil, err
	}

	resp, err := api.StreamReadAll(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("failed to read response stream: %w", err)
	}

	transformed := strings.TrimSpace(resp)
	slog.Debug("transformed query", "original", tp.Query, "transformed", transformed)
	return map[string]any{
		"query_original":               tp.Query,
		executor.ValueQueryTransformed: transformed,
	}, nil
}
