// Package worker runs the background processor that indexes buckets and
// answers chat messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/rag"
	"github.com/alan-mat/docchat/internal/session"
	"github.com/alan-mat/docchat/internal/tasks"
	"github.com/alan-mat/docchat/internal/transport"
)

type Worker struct {
	conf *config.Config
	opts []rag.Option

	rdb         *redis.Client
	asynqServer *asynq.Server
	pipeline    *rag.Pipeline
}

func New(conf *config.Config, opts ...rag.Option) *Worker {
	return &Worker{conf: conf, opts: opts}
}

// Start processes tasks until the process receives SIGINT or SIGTERM.
func (w *Worker) Start() error {
	w.rdb = redis.NewClient(w.conf.Transport.Options())
	defer w.rdb.Close()

	if err := w.rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at '%s': %w", w.conf.Transport.Addr, err)
	}

	w.asynqServer = asynq.NewServerFromRedisClient(
		w.rdb,
		asynq.Config{
			Concurrency: w.conf.Worker.Concurrency,
			Logger:      slogLogger{},
		},
	)

	tr := transport.NewRedisTransport(w.rdb)
	tr.Block = w.conf.Transport.ReadBlock

	w.pipeline = rag.New(w.conf, tr, w.opts...)
	defer func() {
		if err := w.pipeline.Close(); err != nil {
			slog.Warn("failed to close pipeline", "err", err)
		}
	}()

	sessions := session.NewRedisStore(w.rdb, w.conf.Session.TTL)
	handler := tasks.NewTaskHandler(tr, sessions, w.pipeline)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeInit, handler)
	mux.Handle(tasks.TypeChat, handler)

	slog.Info("Worker starting",
		"redis", w.conf.Transport.Addr,
		"concurrency", w.conf.Worker.Concurrency,
		"vector_store", w.conf.VectorStore.Type,
		"llm", w.conf.RAG.LLMProvider,
	)
	if err := w.asynqServer.Run(mux); err != nil {
		return err
	}
	return nil
}

// slogLogger routes asynq's internal logging through slog.
type slogLogger struct{}

func (slogLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Info(args ...any)  { slog.Info(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...), "component", "asynq")
	os.Exit(1)
}
