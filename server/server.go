package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/metrics"
	"github.com/alan-mat/docchat/internal/provider"
	"github.com/alan-mat/docchat/internal/session"
	"github.com/alan-mat/docchat/internal/transport"
)

//go:embed templates/*.html
var templates embed.FS

// Enqueuer is the part of *asynq.Client the server uses.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Backends struct {
	Sessions  session.Store
	Transport transport.Transport
	Tasks     Enqueuer

	// Ping reports whether the backing services are reachable. Optional.
	Ping func(ctx context.Context) error
}

type Server struct {
	config    config.ServerConfig
	defaults  config.Settings
	indexName string

	// emulate lets chat run before any documents are indexed.
	emulate bool

	sessions  session.Store
	transport transport.Transport
	tasks     Enqueuer
	ping      func(ctx context.Context) error

	engine *gin.Engine
}

func New(conf *config.Config, b Backends) *Server {
	s := &Server{
		config:    conf.Server,
		defaults:  conf.Defaults,
		indexName: conf.RAG.IndexName,
		emulate:   conf.RAG.LLMProvider == provider.Echo,
		sessions:  b.Sessions,
		transport: b.Transport,
		tasks:     b.Tasks,
		ping:      b.Ping,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templates, "templates/*.html")))

	r.GET("/", s.index)
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.PUT("/sessions/:id/settings", s.saveSettings)
		api.POST("/sessions/:id/init", s.initSession)
		api.GET("/sessions/:id/messages", s.listMessages)
		api.POST("/sessions/:id/messages", s.postMessage)

		api.GET("/traces/:id", s.getTrace)
		api.GET("/traces/:id/events", s.traceEvents)
	}
	return r
}

// Serve listens until ctx is canceled, then drains open requests.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.ListenHost, s.config.ListenPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "listener", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
