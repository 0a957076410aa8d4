package transport

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTransport keeps streams and traces in process. It backs the
// one-shot CLI commands and tests.
type MemoryTransport struct {
	mu      sync.Mutex
	streams map[string]*memoryLog
	traces  map[string]RequestTrace
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		streams: make(map[string]*memoryLog),
		traces:  make(map[string]RequestTrace),
	}
}

type memoryLog struct {
	mu       sync.Mutex
	messages []MessageStreamPayload
	notify   chan struct{}
}

func (l *memoryLog) append(p MessageStreamPayload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, p)
	close(l.notify)
	l.notify = make(chan struct{})
}

// at returns message i, or a channel closed on the next append.
func (l *memoryLog) at(i int) (*MessageStreamPayload, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < len(l.messages) {
		m := l.messages[i]
		return &m, nil
	}
	return nil, l.notify
}

func (t *MemoryTransport) GetMessageStream(id string) (MessageStream, error) {
	if len(id) == 0 {
		return nil, ErrInvalidStreamID
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	log, ok := t.streams[id]
	if !ok {
		log = &memoryLog{notify: make(chan struct{})}
		t.streams[id] = log
	}
	return &MemoryStream{id: id, log: log}, nil
}

func (t *MemoryTransport) SetTrace(ctx context.Context, trace *RequestTrace) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traces[trace.ID] = *trace
	return nil
}

func (t *MemoryTransport) GetTrace(ctx context.Context, traceId string) (*RequestTrace, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trace, ok := t.traces[traceId]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrTraceNotFound, traceId)
	}
	return &trace, nil
}

// MemoryStream reads a shared log from its own cursor.
type MemoryStream struct {
	id   string
	next int
	log  *memoryLog
}

func (s *MemoryStream) Send(ctx context.Context, payload MessageStreamPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.append(payload)
	return nil
}

func (s *MemoryStream) Recv(ctx context.Context) (*MessageStreamPayload, error) {
	for {
		msg, wait := s.log.at(s.next)
		if msg != nil {
			s.next++
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (s *MemoryStream) Text(ctx context.Context) (string, error) {
	return readText(ctx, s)
}

func (s *MemoryStream) GetID() string {
	return s.id
}
