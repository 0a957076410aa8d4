package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/alan-mat/docchat/internal/api"
)

// IsNotFound reports whether err is a 404 from a Google API.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 from a Google API.
func IsUnauthorized(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) &&
		(gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden)
}

type GCSConfig struct {
	ProjectID string
	// AccessToken is an OAuth2 bearer token. When empty, application
	// default credentials are used.
	AccessToken string
	Path        string
}

type GCSLoader struct {
	svc  *storage.Service
	path BucketPath
	opts Options
}

// NewGCSLoader creates a loader for the objects under cfg.Path, billing
// requests to cfg.ProjectID. Extra client options are appended last.
func NewGCSLoader(ctx context.Context, cfg GCSConfig, opts Options, clientOpts ...option.ClientOption) (*GCSLoader, error) {
	bp, err := ParseBucketPath(cfg.Path)
	if err != nil {
		return nil, err
	}

	copts := []option.ClientOption{option.WithQuotaProject(cfg.ProjectID)}
	if cfg.AccessToken != "" {
		copts = append(copts, option.WithTokenSource(
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}),
		))
	}
	copts = append(copts, clientOpts...)

	svc, err := storage.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSLoader{svc: svc, path: bp, opts: opts}, nil
}

func (l *GCSLoader) Load(ctx context.Context) ([]*api.Document, error) {
	files, err := l.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list '%s': %w", l.path, describe(err))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("failed to load documents from '%s': %w", l.path, ErrNoFiles)
	}

	docs := make([]*api.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.concurrency())

	for i, f := range files {
		g.Go(func() error {
			data, err := l.download(gctx, f.Path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("failed to download object, skipping...", "bucket", l.path.Bucket, "object", f.Path, "err", describe(err))
				return nil
			}

			text, err := ReadDocument(f.Name(), f.ContentType, data)
			if err != nil {
				slog.Warn("failed to read object, skipping...", "object", f.Path, "err", err)
				return nil
			}
			docs[i] = newDocument(f, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return compact(docs, l.path.String())
}

func (l *GCSLoader) list(ctx context.Context) ([]FileInfo, error) {
	call := l.svc.Objects.List(l.path.Bucket).Prefix(l.path.Prefix)
	if !l.opts.Recursive {
		call = call.Delimiter("/")
	}

	files := make([]FileInfo, 0)
	err := call.Pages(ctx, func(objs *storage.Objects) error {
		for _, o := range objs.Items {
			f := FileInfo{
				Path:        o.Name,
				ContentType: o.ContentType,
				Size:        int64(o.Size),
				Created:     parseTime(o.TimeCreated),
				Updated:     parseTime(o.Updated),
			}
			if reason := l.opts.skip(f); reason != "" {
				slog.Debug("skipping object", "object", o.Name, "reason", reason)
				continue
			}
			files = append(files, f)
		}
		return nil
	})
	return files, err
}

func (l *GCSLoader) download(ctx context.Context, name string) ([]byte, error) {
	resp, err := l.svc.Objects.Get(l.path.Bucket, name).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	r := io.Reader(resp.Body)
	if l.opts.MaxFileBytes > 0 {
		r = io.LimitReader(resp.Body, l.opts.MaxFileBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if l.opts.MaxFileBytes > 0 && int64(len(data)) > l.opts.MaxFileBytes {
		return nil, fmt.Errorf("object exceeds %d bytes", l.opts.MaxFileBytes)
	}
	return data, nil
}

func describe(err error) error {
	switch {
	case IsNotFound(err):
		return fmt.Errorf("bucket or object not found: %w", err)
	case IsUnauthorized(err):
		return fmt.Errorf("access denied, check the project id and credentials: %w", err)
	}
	return err
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func compact(docs []*api.Document, source string) ([]*api.Document, error) {
	out := make([]*api.Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("failed to load documents from '%s': %w", source, ErrNoFiles)
	}
	return out, nil
}
