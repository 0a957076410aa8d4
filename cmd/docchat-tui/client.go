package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/transport"
)

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
	Missing []string
}

func (e *apiError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Missing, ", "))
	}
	return e.Message
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) createSession(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *client) saveSettings(ctx context.Context, id string, s config.Settings) ([]string, error) {
	var out struct {
		Missing []string `json:"missing"`
	}
	err := c.do(ctx, http.MethodPut, "/api/sessions/"+id+"/settings", s, &out)
	return out.Missing, err
}

func (c *client) init(ctx context.Context, id string) (string, error) {
	var out struct {
		TraceID string `json:"trace_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/init", nil, &out)
	return out.TraceID, err
}

func (c *client) send(ctx context.Context, id, content string) (string, error) {
	var out struct {
		TraceID string `json:"trace_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/messages", map[string]string{"content": content}, &out)
	return out.TraceID, err
}

// follow reads a trace's event stream and calls fn for every message up
// to the final one.
func (c *client) follow(ctx context.Context, traceID string, fn func(transport.MessageStreamPayload)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/traces/"+traceID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream for trace '%s': %s", traceID, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}

		var msg transport.MessageStreamPayload
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &msg); err != nil {
			return fmt.Errorf("invalid event: %w", err)
		}
		fn(msg)
		if msg.Final() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
