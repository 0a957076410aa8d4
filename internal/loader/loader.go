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

// Package loader reads documents from a cloud bucket or a local directory
// and turns them into text documents with file metadata.
package loader

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/alan-mat/docchat/internal/api"
)

var ErrNoFiles = errors.New("no files found")

// Metadata keys attached to every loaded document.
const (
	MetaFilePath         = "file_path"
	MetaFileName         = "file_name"
	MetaFileType         = "file_type"
	MetaFileSize         = "file_size"
	MetaCreationDate     = "creation_date"
	MetaLastModifiedDate = "last_modified_date"
)

const dateLayout = "2006-01-02"

type Loader interface {
	Load(ctx context.Context) ([]*api.Document, error)
}

type Options struct {
	Recursive    bool
	MaxFileBytes int64
	// Exclude lists file extensions, with or without the leading dot.
	Exclude     []string
	Concurrency int
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return 8
	}
	return o.Concurrency
}

// FileInfo describes a listed object before it is read.
type FileInfo struct {
	Path        string
	ContentType string
	Size        int64
	Created     time.Time
	Updated     time.Time
}

func (f FileInfo) Name() string {
	return path.Base(f.Path)
}

// skip reports why a listed file is not read, or "" when it should be.
func (o Options) skip(f FileInfo) string {
	name := f.Name()
	switch {
	case strings.HasSuffix(f.Path, "/"):
		return "directory placeholder"
	case strings.HasPrefix(name, "."):
		return "hidden file"
	case o.MaxFileBytes > 0 && f.Size > o.MaxFileBytes:
		return "file too large"
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext != "" && slices.ContainsFunc(o.Exclude, func(e string) bool {
		return strings.ToLower(strings.TrimPrefix(e, ".")) == ext
	}) {
		return "excluded extension"
	}
	return ""
}

func newDocument(f FileInfo, text string) *api.Document {
	meta := map[string]any{
		MetaFilePath: f.Path,
		MetaFileName: f.Name(),
		MetaFileType: detectContentType(f.Name(), f.ContentType),
		MetaFileSize: f.Size,
	}
	if !f.Created.IsZero() {
		meta[MetaCreationDate] = f.Created.UTC().Format(dateLayout)
	}
	if !f.Updated.IsZero() {
		meta[MetaLastModifiedDate] = f.Updated.UTC().Format(dateLayout)
	}

	return &api.Document{
		ID:       f.Path,
		Text:     text,
		Metadata: meta,
	}
}
