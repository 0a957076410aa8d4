// Package session stores per browser session form values and chat
// transcripts.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrSettingsChanged reports that the session points at another bucket
	// or collection than the one an init task indexed.
	ErrSettingsChanged = errors.New("session settings changed during init")
)

type Session struct {
	ID          string          `json:"id"`
	Settings    config.Settings `json:"settings"`
	Initialized bool            `json:"initialized"`
	LastTraceID string          `json:"last_trace_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func New(defaults config.Settings) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Settings:  defaults,
		CreatedAt: time.Now().UTC(),
	}
}

type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// SaveSettings replaces the form values. A changed bucket, database or
	// collection resets the initialized flag.
	SaveSettings(ctx context.Context, id string, settings config.Settings) (*Session, error)
	// MarkInitialized sets the initialized flag if the session still targets
	// the bucket and collection of indexed, else it returns ErrSettingsChanged.
	MarkInitialized(ctx context.Context, id string, traceID string, indexed config.Settings) error
	SetLastTrace(ctx context.Context, id string, traceID string) error

	AppendMessage(ctx context.Context, id string, msg *api.ChatMessage) error
	// PopMessage removes the last transcript message, if any.
	PopMessage(ctx context.Context, id string) error
	Messages(ctx context.Context, id string) ([]*api.ChatMessage, error)

	Delete(ctx context.Context, id string) error
}

func applySettings(s *Session, settings config.Settings) {
	prev := s.Settings
	s.Settings = settings
	if !sameIndex(prev, settings) {
		s.Initialized = false
	}
}

func markInitialized(s *Session, traceID string, indexed config.Settings) error {
	if !sameIndex(s.Settings, indexed) {
		return ErrSettingsChanged
	}
	s.Initialized = true
	s.LastTraceID = traceID
	return nil
}

// sameIndex reports whether a and b load the same bucket into the same
// collection.
func sameIndex(a, b config.Settings) bool {
	return a.Bucket == b.Bucket && a.ProjectID == b.ProjectID &&
		a.Database == b.Database && a.Collection == b.Collection &&
		a.ConnString == b.ConnString
}
