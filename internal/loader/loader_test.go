package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBucketPath(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		prefix string
	}{
		{"my-bucket", "my-bucket", ""},
		{"my-bucket/", "my-bucket", ""},
		{"my-bucket/docs", "my-bucket", "docs/"},
		{"gs://my-bucket/docs/2024/", "my-bucket", "docs/2024/"},
		{"  gs://my-bucket  ", "my-bucket", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bp, err := ParseBucketPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bp.Bucket)
			assert.Equal(t, tt.prefix, bp.Prefix)
		})
	}

	for _, bad := range []string{"", "gs://", "/", "bad bucket/x"} {
		_, err := ParseBucketPath(bad)
		assert.ErrorIs(t, err, ErrInvalidBucketPath, "input %q", bad)
	}

	bp, _ := ParseBucketPath("b/p")
	assert.Equal(t, "gs://b/p/", bp.String())
}

func TestOptionsSkip(t *testing.T) {
	opts := Options{MaxFileBytes: 100, Exclude: []string{".png", "JPG"}}

	assert.Equal(t, "", opts.skip(FileInfo{Path: "docs/a.txt", Size: 10}))
	assert.Equal(t, "directory placeholder", opts.skip(FileInfo{Path: "docs/"}))
	assert.Equal(t, "hidden file", opts.skip(FileInfo{Path: "docs/.keep"}))
	assert.Equal(t, "file too large", opts.skip(FileInfo{Path: "big.txt", Size: 101}))
	assert.Equal(t, "excluded extension", opts.skip(FileInfo{Path: "img.PNG"}))
	assert.Equal(t, "excluded extension", opts.skip(FileInfo{Path: "photo.jpg"}))

	assert.Equal(t, "", Options{}.skip(FileInfo{Path: "huge.bin", Size: 1 << 40}))
}

func TestReadDocument(t *testing.T) {
	text, err := ReadDocument("notes.txt", "", []byte("plain text body"))
	require.NoError(t, err)
	assert.Equal(t, "plain text body", text)

	html := `<html><head><title>t</title><style>p{}</style></head>
<body><h1>Quarterly   report</h1><script>var x = 1;</script><p>Revenue grew.</p></body></html>`
	text, err = ReadDocument("page.html", "", []byte(html))
	require.NoError(t, err)
	assert.Contains(t, text, "Quarterly report")
	assert.Contains(t, text, "Revenue grew.")
	assert.NotContains(t, text, "var x")

	text, err = ReadDocument("bin.txt", "text/plain", []byte{'o', 'k', 0xff})
	require.NoError(t, err)
	assert.Equal(t, "ok�", text)

	_, err = ReadDocument("empty.txt", "", []byte("   \n"))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = ReadDocument("broken.pdf", "application/pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestReadDocumentRejectsBinary(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	_, err := ReadDocument("logo.png", "image/png", png)
	assert.ErrorIs(t, err, ErrBinaryDocument)

	// a misleading name does not help
	_, err = ReadDocument("notes.txt", "text/plain", png)
	assert.ErrorIs(t, err, ErrBinaryDocument)

	_, err = ReadDocument("archive", "", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"))
	assert.ErrorIs(t, err, ErrBinaryDocument)

	_, err = ReadDocument("blob.dat", "", []byte{0x00, 0x01, 0x02, 'a', 'b'})
	assert.ErrorIs(t, err, ErrBinaryDocument)

	text, err := ReadDocument("config.yaml", "application/x-yaml", []byte("key: value\n"))
	require.NoError(t, err)
	assert.Equal(t, "key: value\n", text)
}

func TestDirLoader(t *testing.T) {
	root := t.TempDir()
	write := func(name, content string) {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("a.txt", "alpha document")
	write("b.md", "beta document")
	write(".hidden", "secret")
	write("sub/c.txt", "nested document")
	write("broken.pdf", "garbage")

	docs, err := NewDirLoader(root, Options{}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	names := []string{docs[0].MetaString(MetaFileName), docs[1].MetaString(MetaFileName)}
	assert.ElementsMatch(t, []string{"a.txt", "b.md"}, names)
	for _, d := range docs {
		assert.NotEmpty(t, d.Metadata[MetaLastModifiedDate])
		assert.NotEmpty(t, d.MetaString(MetaFilePath))
	}

	docs, err = NewDirLoader(root, Options{Recursive: true}).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestDirLoaderNoFiles(t *testing.T) {
	_, err := NewDirLoader(t.TempDir(), Options{}).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoFiles)
}
