package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/loader"
	"github.com/alan-mat/docchat/internal/rag"
	"github.com/alan-mat/docchat/internal/session"
	"github.com/alan-mat/docchat/internal/transport"
	"github.com/alan-mat/docchat/server"
	"github.com/alan-mat/docchat/worker"
)

const (
	ProgramName   = "docchat"
	Version       = "v0.1.0"
	RepositoryUrl = "github.com/alan-mat/docchat"
)

type serveCmd struct{}

type workerCmd struct {
	Dir string `arg:"--dir" help:"read documents from a local directory instead of the bucket"`
}

type ingestCmd struct {
	Dir string `arg:"--dir" help:"read documents from a local directory instead of the bucket"`
}

type askCmd struct {
	Query string `arg:"positional,required" help:"question to ask about the indexed documents"`
	Dir   string `arg:"--dir" help:"index this local directory before asking"`
}

type args struct {
	Config  string `arg:"--config,-c" default:"docchat.yaml" help:"path to the yaml config file"`
	EnvFile string `arg:"--env-file" default:".env" help:"dotenv file with API keys and connection strings"`
	Verbose bool   `arg:"--verbose,-v" help:"enable debug logging"`

	Server *serveCmd  `arg:"subcommand:serve" help:"start the web server"`
	Worker *workerCmd `arg:"subcommand:work" help:"start the background worker"`
	Ingest *ingestCmd `arg:"subcommand:ingest" help:"index the configured bucket in process"`
	Ask    *askCmd    `arg:"subcommand:ask" help:"ask a question in process and stream the answer"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Epilogue() string {
	return fmt.Sprintf("For more information visit %s", RepositoryUrl)
}

func main() {
	var args args

	p, err := arg.NewParser(arg.Config{Program: ProgramName}, &args)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])

	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.LoadEnv(args.EnvFile); err != nil {
		slog.Error("failed to load env file", "path", args.EnvFile, "err", err)
		os.Exit(1)
	}
	conf, err := config.ReadConfig(args.Config)
	if err != nil {
		slog.Error("failed to read config", "err", err)
		os.Exit(1)
	}
	conf.ApplyEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cmd func(ctx context.Context, conf *config.Config) error

	switch sub := p.Subcommand().(type) {
	case *serveCmd:
		cmd = startServer
	case *workerCmd:
		cmd = func(ctx context.Context, conf *config.Config) error {
			return startWorker(conf, sub.Dir)
		}
	case *ingestCmd:
		cmd = func(ctx context.Context, conf *config.Config) error {
			return ingest(ctx, conf, sub.Dir)
		}
	case *askCmd:
		cmd = func(ctx context.Context, conf *config.Config) error {
			return ask(ctx, conf, sub.Dir, sub.Query)
		}
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}

	if err := cmd(ctx, conf); err != nil {
		slog.Error("command failed", "cmd", strings.Join(p.SubcommandNames(), " "), "err", err)
		os.Exit(1)
	}
}

func startServer(ctx context.Context, conf *config.Config) error {
	rdb := redis.NewClient(conf.Transport.Options())
	defer rdb.Close()

	queue := asynq.NewClientFromRedisClient(rdb)
	defer queue.Close()

	tr := transport.NewRedisTransport(rdb)
	tr.Block = conf.Transport.ReadBlock

	srv := server.New(conf, server.Backends{
		Sessions:  session.NewRedisStore(rdb, conf.Session.TTL),
		Transport: tr,
		Tasks:     queue,
		Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	return srv.Serve(ctx)
}

func startWorker(conf *config.Config, dir string) error {
	var opts []rag.Option
	if dir != "" {
		opts = append(opts, dirLoader(conf, dir))
	}
	return worker.New(conf, opts...).Start()
}

// dirLoader reads documents from a local directory for every session.
func dirLoader(conf *config.Config, dir string) rag.Option {
	return rag.WithLoader(func(ctx context.Context, s config.Settings) (loader.Loader, error) {
		return loader.NewDirLoader(dir, loader.Options{
			Recursive:    conf.Loader.Recursive,
			MaxFileBytes: conf.Loader.MaxFileBytes,
			Exclude:      conf.Loader.Exclude,
			Concurrency:  conf.Loader.Concurrency,
		}), nil
	})
}
