package api

import (
	"context"
	"errors"
	"io"
	"strings"
)

type ChatRequest struct {
	// Required
	Query string

	// Optional params
	ModelName    string
	SystemPrompt string
	History      []*ChatMessage
	Temperature  *float32
}

type GenerationRequest struct {
	// Required
	Prompt string

	// Optional params
	ModelName   string
	Temperature float32
}

func FromPrompt(prompt string) *GenerationRequest {
	return &GenerationRequest{
		Prompt:      prompt,
		ModelName:   "",
		Temperature: 0.7,
	}
}

type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

type completionStreamPayload struct {
	content string
	err     error
}

// StreamReadAll receives from a completion stream accumulating the results
// and returning the streamed chunks as a whole. The first error received
// from the stream is returned along with what was read so far. Calling this
// function will always close the underlying stream.
func StreamReadAll(ctx context.Context, stream CompletionStream) (string, error) {
	defer stream.Close()
	dataChan := make(chan completionStreamPayload)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(dataChan)

		for {
			chunk, err := stream.Recv()

			if errors.Is(err, io.EOF) {
				return
			}

			var payload completionStreamPayload
			if err != nil {
				payload = completionStreamPayload{err: err}
			} else {
				payload = completionStreamPayload{content: chunk}
			}

			select {
			case dataChan <- payload:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var acc strings.Builder

	for {
		select {
		case <-ctx.Done():
			return acc.String(), ctx.Err()
		case payload, ok := <-dataChan:
			if !ok {
				// data stream closed
				return acc.String(), nil
			}

			if payload.err != nil {
				return acc.String(), payload.err
			}

			acc.WriteString(payload.content)
		}
	}
}
