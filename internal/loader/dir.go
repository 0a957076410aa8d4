package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/alan-mat/docchat/internal/api"
)

// DirLoader reads documents from a local directory.
type DirLoader struct {
	root string
	opts Options
}

func NewDirLoader(root string, opts Options) *DirLoader {
	return &DirLoader{root: root, opts: opts}
}

func (l *DirLoader) Load(ctx context.Context) ([]*api.Document, error) {
	files, err := l.list()
	if err != nil {
		return nil, fmt.Errorf("failed to read directory '%s': %w", l.root, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("failed to load documents from '%s': %w", l.root, ErrNoFiles)
	}

	docs := make([]*api.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.concurrency())

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := os.ReadFile(f.Path)
			if err != nil {
				slog.Warn("failed to read file contents, skipping...", "filePath", f.Path, "err", err)
				return nil
			}

			text, err := ReadDocument(f.Name(), "", data)
			if err != nil {
				slog.Warn("failed to read file contents, skipping...", "filePath", f.Path, "err", err)
				return nil
			}
			docs[i] = newDocument(f, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return compact(docs, l.root)
}

func (l *DirLoader) list() ([]FileInfo, error) {
	files := make([]FileInfo, 0)
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != l.root && (!l.opts.Recursive || d.Name()[0] == '.') {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		f := FileInfo{
			Path:    filepath.ToSlash(p),
			Size:    info.Size(),
			Created: info.ModTime(),
			Updated: info.ModTime(),
		}
		if reason := l.opts.skip(f); reason != "" {
			slog.Debug("skipping file", "filePath", p, "reason", reason)
			return nil
		}
		files = append(files, f)
		return nil
	})
	return files, err
}
