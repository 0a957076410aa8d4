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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/rag"
	"github.com/alan-mat/docchat/internal/transport"
)

func localPipeline(conf *config.Config, tr transport.Transport, dir string) (*rag.Pipeline, config.Settings) {
	settings := conf.Defaults
	var opts []rag.Option
	if dir != "" {
		opts = append(opts, dirLoader(conf, dir))
		// the directory stands in for the bucket
		if settings.Bucket == "" {
			settings.Bucket = dir
		}
		if settings.ProjectID == "" {
			settings.ProjectID = "local"
		}
	}
	return rag.New(conf, tr, opts...), settings
}

func ingest(ctx context.Context, conf *config.Config, dir string) error {
	tr := transport.NewMemoryTransport()
	p, settings := localPipeline(conf, tr, dir)
	defer p.Close()

	return runInit(ctx, p, tr, settings)
}

func runInit(ctx context.Context, p *rag.Pipeline, tr transport.Transport, settings config.Settings) error {
	return runStreamed(ctx, tr, func(ctx context.Context, id string) error {
		res, err := p.Init(ctx, id, settings)
		if err != nil {
			return err
		}
		slog.Info("documents indexed",
			"documents", res.DocumentsLoaded,
			"chunks", res.ChunksIndexed,
			"index", res.IndexName,
		)
		return nil
	}, printMessage(os.Stderr))
}

func ask(ctx context.Context, conf *config.Config, dir, query string) error {
	tr := transport.NewMemoryTransport()
	p, settings := localPipeline(conf, tr, dir)
	defer p.Close()

	if dir != "" && !p.Emulated() {
		if err := runInit(ctx, p, tr, settings); err != nil {
			return err
		}
	}

	var res *rag.ChatResult
	err := runStreamed(ctx, tr, func(ctx context.Context, id string) error {
		var err error
		res, err = p.Chat(ctx, id, settings, query, nil)
		return err
	}, printMessage(os.Stdout))
	if err != nil {
		return err
	}

	fmt.Println()
	if len(res.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, d := range res.Sources {
			fmt.Printf("  %s (%.3f)\n", d.Title, d.Score)
		}
	}
	return nil
}

// runStreamed runs fn under a fresh trace id and passes every message it
// streams to out until fn returns.
func runStreamed(ctx context.Context, tr transport.Transport, fn func(ctx context.Context, id string) error, out func(*transport.MessageStreamPayload)) error {
	id := uuid.NewString()
	ms, err := tr.GetMessageStream(id)
	if err != nil {
		return err
	}
	reader, err := tr.GetMessageStream(id)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		for {
			msg, err := reader.Recv(ctx)
			if err != nil {
				return err
			}
			out(msg)
			if msg.Final() {
				return nil
			}
		}
	})

	runErr := fn(ctx, id)

	final := transport.MessageStreamPayload{Type: transport.MessageTypeStatus, Status: transport.StatusDone}
	if runErr != nil {
		final = transport.MessageStreamPayload{
			Type:    transport.MessageTypeError,
			Status:  transport.StatusErr,
			Content: runErr.Error(),
		}
	}
	if err := ms.Send(context.WithoutCancel(ctx), final); err != nil {
		slog.Warn("failed to close message stream", "id", id, "err", err)
	}

	if err := g.Wait(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func printMessage(w io.Writer) func(*transport.MessageStreamPayload) {
	return func(msg *transport.MessageStreamPayload) {
		switch msg.Type {
		case transport.MessageTypeContent:
			fmt.Fprint(w, msg.Content)
		case transport.MessageTypeStatus:
			if msg.Content != "" {
				fmt.Fprintln(os.Stderr, msg.Content)
			}
		}
	}
}
