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

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alan-mat/docchat/internal/api"
)

var (
	TraceExpiry  = time.Hour * 24
	StreamExpiry = time.Hour

	ErrInvalidStreamID = errors.New("invalid stream ID")
	ErrTraceNotFound   = errors.New("trace not found")
	ErrStreamFailed    = errors.New("stream finished with an error")
)

const (
	StatusOK   = "OK"
	StatusErr  = "ERR"
	StatusDone = "DONE"
)

type Transport interface {
	GetMessageStream(id string) (MessageStream, error)
	SetTrace(ctx context.Context, trace *RequestTrace) error
	GetTrace(ctx context.Context, traceId string) (*RequestTrace, error)
}

type MessageStream interface {
	Send(ctx context.Context, payload MessageStreamPayload) error

	// Recv blocks until the next message is available.
	Recv(ctx context.Context) (*MessageStreamPayload, error)

	// Text reads the message stream up to its final message and returns
	// the concatenated content messages.
	//
	// Note this will not retrieve any Documents sent in the stream
	Text(ctx context.Context) (string, error)

	GetID() string
}

type MessageStreamPayload struct {
	ID     int         `json:"id"`
	Status string      `json:"status"`
	Type   MessageType `json:"type"`
	Step   string      `json:"step,omitempty"`

	Content  string    `json:"content"`
	Document *Document `json:"document,omitempty"`
}

// Final reports whether no further messages follow this one.
func (p MessageStreamPayload) Final() bool {
	return p.Status == StatusDone || p.Status == StatusErr
}

type MessageType int

const (
	MessageTypeStatus MessageType = iota
	MessageTypeContent
	MessageTypeDocument
	MessageTypeError
)

var messageTypeNames = map[MessageType]string{
	MessageTypeStatus:   "status",
	MessageTypeContent:  "content",
	MessageTypeDocument: "document",
	MessageTypeError:    "error",
}

func (t MessageType) String() string {
	if n, ok := messageTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *MessageType) UnmarshalText(b []byte) error {
	for k, v := range messageTypeNames {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown message type '%s'", b)
}

type Document struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

func DocumentFromScored(d *api.ScoredDocument) *Document {
	return &Document{
		Title:   d.Title,
		Content: d.Content,
		Source:  d.Source,
		Score:   d.Score,
	}
}

type RequestTrace struct {
	ID          string `redis:"id" json:"id"`
	Kind        string `redis:"kind" json:"kind"`
	Status      int    `redis:"status" json:"status"`
	StartedAt   int64  `redis:"started_at" json:"started_at"`
	CompletedAt int64  `redis:"completed_at" json:"completed_at"`
	Query       string `redis:"query" json:"query"`
	Session     string `redis:"session" json:"session"`
	FailReason  string `redis:"fail_reason" json:"fail_reason,omitempty"`
}

func NewRequestTrace(id, kind, session, query string) *RequestTrace {
	return &RequestTrace{
		ID:        id,
		Kind:      kind,
		Status:    TraceStatusRunning,
		StartedAt: time.Now().UnixNano(),
		Query:     query,
		Session:   session,
	}
}

// Complete marks the trace finished, failed when err is not nil.
func (t *RequestTrace) Complete(err error) {
	t.CompletedAt = time.Now().UnixNano()
	if err != nil {
		t.Status = TraceStatusFailed
		t.FailReason = err.Error()
		return
	}
	t.Status = TraceStatusCompleted
}

const (
	TraceStatusUnspecified = iota
	TraceStatusRunning
	TraceStatusCompleted
	TraceStatusFailed
)

func TraceStatusName(status int) string {
	switch status {
	case TraceStatusRunning:
		return "running"
	case TraceStatusCompleted:
		return "completed"
	case TraceStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// SendStatus writes a progress line for step.
func SendStatus(ctx context.Context, ms MessageStream, step, content string) {
	err := ms.Send(ctx, MessageStreamPayload{
		Type:    MessageTypeStatus,
		Status:  StatusOK,
		Step:    step,
		Content: content,
	})
	if err != nil {
		slog.Debug("failed sending status to message stream", "id", ms.GetID(), "step", step, "err", err)
	}
}

// SendDocuments writes one document message per context document.
func SendDocuments(ctx context.Context, ms MessageStream, docs []*api.ScoredDocument) {
	for _, d := range docs {
		err := ms.Send(ctx, MessageStreamPayload{
			Type:     MessageTypeDocument,
			Status:   StatusOK,
			Document: DocumentFromScored(d),
		})
		if err != nil {
			slog.Debug("failed sending document to message stream", "id", ms.GetID(), "err", err)
		}
	}
}

// ProcessCompletionStream forwards every non-blank chunk of cs to ms and
// returns the full text. Blank chunks are held back and prepended to the
// next one.
func ProcessCompletionStream(ctx context.Context, ms MessageStream, cs api.CompletionStream) (string, error) {
	var acc, sink strings.Builder
	msgId := 0

	for {
		chunk, err := cs.Recv()
		if errors.Is(err, io.EOF) {
			return sink.String(), nil
		}

		if err != nil {
			ms.Send(ctx, MessageStreamPayload{
				ID:      msgId,
				Type:    MessageTypeError,
				Status:  StatusErr,
				Content: "something went wrong",
			})
			return sink.String(), err
		}

		acc.WriteString(chunk)
		sink.WriteString(chunk)

		if strings.TrimSpace(chunk) == "" {
			continue
		}

		err = ms.Send(ctx, MessageStreamPayload{
			ID:      msgId,
			Type:    MessageTypeContent,
			Status:  StatusOK,
			Content: acc.String(),
		})
		if err != nil {
			slog.Debug("failed sending chunk to message stream", "chunk", acc.String())
		}

		acc.Reset()
		msgId += 1
	}
}

// readText drains ms for MessageStream.Text implementations.
func readText(ctx context.Context, ms MessageStream) (string, error) {
	var sb strings.Builder
	for {
		msg, err := ms.Recv(ctx)
		if err != nil {
			return sb.String(), err
		}
		if msg.Type == MessageTypeContent {
			sb.WriteString(msg.Content)
		}
		switch msg.Status {
		case StatusDone:
			return sb.String(), nil
		case StatusErr:
			return sb.String(), fmt.Errorf("%w: %s", ErrStreamFailed, msg.Content)
		}
	}
}
