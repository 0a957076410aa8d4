package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*api.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*api.ChatMessage),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	c := *s
	return &c, nil
}

func (m *MemoryStore) update(id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	// fn works on a copy so a failed update leaves the session untouched
	c := *s
	if err := fn(&c); err != nil {
		return nil, err
	}
	*s = c
	return &c, nil
}

func (m *MemoryStore) SaveSettings(ctx context.Context, id string, settings config.Settings) (*Session, error) {
	return m.update(id, func(s *Session) error {
		applySettings(s, settings)
		return nil
	})
}

func (m *MemoryStore) MarkInitialized(ctx context.Context, id string, traceID string, indexed config.Settings) error {
	_, err := m.update(id, func(s *Session) error {
		return markInitialized(s, traceID, indexed)
	})
	return err
}

func (m *MemoryStore) SetLastTrace(ctx context.Context, id string, traceID string) error {
	_, err := m.update(id, func(s *Session) error {
		s.LastTraceID = traceID
		return nil
	})
	return err
}

func (m *MemoryStore) AppendMessage(ctx context.Context, id string, msg *api.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	c := *msg
	m.messages[id] = append(m.messages[id], &c)
	return nil
}

func (m *MemoryStore) PopMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.messages[id]); n > 0 {
		m.messages[id] = m.messages[id][:n-1]
	}
	return nil
}

func (m *MemoryStore) Messages(ctx context.Context, id string) ([]*api.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.messages[id]), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}
