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

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/metrics"
	"github.com/alan-mat/docchat/internal/rag"
	"github.com/alan-mat/docchat/internal/session"
	"github.com/alan-mat/docchat/internal/transport"
)

// Runner executes the workflows behind the task types. *rag.Pipeline
// implements it.
type Runner interface {
	Init(ctx context.Context, taskID string, s config.Settings) (*rag.InitResult, error)
	Chat(ctx context.Context, taskID string, s config.Settings, query string, history []*api.ChatMessage) (*rag.ChatResult, error)

	// Emulated chat runs without indexed documents.
	Emulated() bool
}

type TaskHandler struct {
	transport transport.Transport
	sessions  session.Store
	runner    Runner
}

func NewTaskHandler(t transport.Transport, sessions session.Store, runner Runner) *TaskHandler {
	return &TaskHandler{
		transport: t,
		sessions:  sessions,
		runner:    runner,
	}
}

func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	started := time.Now()

	var (
		id, sessionID, query, kind string
		history                    []*api.ChatMessage
	)

	switch t.Type() {
	case TypeInit:
		var p initTaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed init payload: %v (%w)", err, asynq.SkipRetry)
		}
		slog.Info("received init task", "session", p.Session)
		id, sessionID, kind = p.TraceID, p.Session, "init"

	case TypeChat:
		var p chatTaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed chat payload: %v (%w)", err, asynq.SkipRetry)
		}
		slog.Info("received chat task", "session", p.Session, "query", p.Query, "history", len(p.History))
		id, sessionID, query, kind = p.TraceID, p.Session, p.Query, "chat"
		history = p.History

	default:
		return fmt.Errorf("unrecognized task type '%s' (%w)", t.Type(), asynq.SkipRetry)
	}

	if id == "" {
		if rw := t.ResultWriter(); rw != nil {
			id = rw.TaskID()
		}
	}
	slog.Info("task id", "id", id)

	ms, err := h.transport.GetMessageStream(id)
	if err != nil {
		slog.Error("failed to initialize message stream", "err", err)
		return fmt.Errorf("failed to initialize message stream: %v (%w)", err, asynq.SkipRetry)
	}

	trace := transport.NewRequestTrace(id, kind, sessionID, query)
	h.setTrace(ctx, trace)

	err = h.run(ctx, id, kind, sessionID, query, history)
	metrics.Get().ObserveTask(t.Type(), started, err)
	trace.Complete(err)
	h.setTrace(ctx, trace)

	if err != nil {
		slog.Error("task failed", "id", id, "kind", kind, "err", err)
		ms.Send(ctx, transport.MessageStreamPayload{
			Type:    transport.MessageTypeError,
			Status:  transport.StatusErr,
			Content: streamError(err),
		})
		return fmt.Errorf("%s task failed: %w (%w)", kind, err, asynq.SkipRetry)
	}

	err = ms.Send(ctx, transport.MessageStreamPayload{
		Type:    transport.MessageTypeStatus,
		Content: "task finished",
		Status:  transport.StatusDone,
	})
	if err != nil {
		slog.Warn("failed to write DONE message to stream", "id", id)
	}
	return nil
}

func (h TaskHandler) run(ctx context.Context, id, kind, sessionID, query string, history []*api.ChatMessage) error {
	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := h.sessions.SetLastTrace(ctx, sess.ID, id); err != nil {
		slog.Warn("failed to record trace on session", "session", sess.ID, "err", err)
	}

	if kind == "init" {
		res, err := h.runner.Init(ctx, id, sess.Settings)
		if err != nil {
			return err
		}
		slog.Info("session initialized", "session", sess.ID, "documents", res.DocumentsLoaded, "chunks", res.ChunksIndexed)
		return h.sessions.MarkInitialized(ctx, sess.ID, id, sess.Settings)
	}

	if !sess.Initialized && !h.runner.Emulated() {
		return rag.ErrNotInitialized
	}
	res, err := h.runner.Chat(ctx, id, sess.Settings, query, history)
	if err != nil {
		return err
	}
	return h.sessions.AppendMessage(ctx, sess.ID, api.AssistantMessage(res.Answer))
}

func (h TaskHandler) setTrace(ctx context.Context, trace *transport.RequestTrace) {
	if err := h.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", trace.ID, "err", err)
	}
}

// streamError is the text shown to the user for a failed task.
func streamError(err error) string {
	switch {
	case errors.Is(err, config.ErrFieldsMissing):
		return config.FillOutMessage
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrSettingsChanged),
		errors.Is(err, rag.ErrNotInitialized):
		return err.Error()
	default:
		return "something went wrong: " + err.Error()
	}
}
