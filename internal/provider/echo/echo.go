// Package echo provides a language model stand-in that streams one of a
// few canned greetings word by word.
package echo

import (
	"context"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/alan-mat/docchat/internal/api"
)

const DefaultDelay = 50 * time.Millisecond

var Responses = []string{
	"Hello there! How can I assist you today?",
	"Hi, human! Is there anything I can help you with?",
	"Do you need help?",
}

type EchoProvider struct {
	delay time.Duration
	pick  func(n int) int
}

type Option func(*EchoProvider)

func WithDelay(d time.Duration) Option {
	return func(p *EchoProvider) {
		p.delay = d
	}
}

// WithPicker replaces the random response choice.
func WithPicker(pick func(n int) int) Option {
	return func(p *EchoProvider) {
		p.pick = pick
	}
}

func New(opts ...Option) *EchoProvider {
	p := &EchoProvider{
		delay: DefaultDelay,
		pick:  rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p EchoProvider) Generate(ctx context.Context, req api.GenerationRequest) (api.CompletionStream, error) {
	return p.stream(ctx), nil
}

func (p EchoProvider) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	return p.stream(ctx), nil
}

func (p EchoProvider) stream(ctx context.Context) *EchoStream {
	response := Responses[p.pick(len(Responses))]
	return &EchoStream{
		ctx:   ctx,
		words: strings.Fields(response),
		delay: p.delay,
	}
}

type EchoStream struct {
	ctx   context.Context
	words []string
	pos   int
	delay time.Duration
}

// Recv yields the next word followed by a space.
func (s *EchoStream) Recv() (string, error) {
	if s.pos >= len(s.words) {
		return "", io.EOF
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		case <-t.C:
		}
	}

	w := s.words[s.pos]
	s.pos++
	return w + " ", nil
}

func (s *EchoStream) Close() error {
	s.pos = len(s.words)
	return nil
}
