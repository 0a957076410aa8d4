package loader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type fakeObject struct {
	Name        string `json:"name"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
	Updated     string `json:"updated"`
	TimeCreated string `json:"timeCreated"`
	body        string
}

func fakeBucket(t *testing.T, bucket string, objects []fakeObject) *httptest.Server {
	t.Helper()
	byName := make(map[string]fakeObject, len(objects))
	for _, o := range objects {
		byName[o.Name] = o
	}

	listPath := "/storage/v1/b/" + bucket + "/o"
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == listPath:
			prefix := r.URL.Query().Get("prefix")
			delim := r.URL.Query().Get("delimiter")
			items := make([]fakeObject, 0)
			for _, o := range objects {
				rest, ok := strings.CutPrefix(o.Name, prefix)
				if !ok || (delim != "" && strings.Contains(rest, delim)) {
					continue
				}
				items = append(items, o)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"kind": "storage#objects", "items": items})

		case strings.HasPrefix(r.URL.Path, listPath+"/") && r.URL.Query().Get("alt") == "media":
			name := strings.TrimPrefix(r.URL.Path, listPath+"/")
			o, ok := byName[name]
			if !ok {
				http.Error(w, `{"error":{"code":404,"message":"No such object"}}`, http.StatusNotFound)
				return
			}
			w.Write([]byte(o.body))

		default:
			http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
		}
	}))
}

func newTestGCSLoader(t *testing.T, srv *httptest.Server, path string, opts Options) *GCSLoader {
	t.Helper()
	l, err := NewGCSLoader(context.Background(), GCSConfig{ProjectID: "demo-project", Path: path}, opts,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return l
}

func TestGCSLoaderLoad(t *testing.T) {
	srv := fakeBucket(t, "docs-bucket", []fakeObject{
		{Name: "reports/q1.txt", Size: "17", ContentType: "text/plain", Updated: "2024-04-02T10:00:00Z", TimeCreated: "2024-04-01T09:00:00Z", body: "first quarter up."},
		{Name: "reports/index.html", Size: "40", ContentType: "text/html", body: "<html><body><p>Summary page</p></body></html>"},
		{Name: "reports/", Size: "0"},
		{Name: "reports/.DS_Store", Size: "3", body: "xxx"},
		{Name: "reports/archive/old.txt", Size: "3", body: "old"},
		{Name: "other/ignored.txt", Size: "3", body: "no"},
	})
	defer srv.Close()

	docs, err := newTestGCSLoader(t, srv, "gs://docs-bucket/reports", Options{}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "reports/q1.txt", docs[0].ID)
	assert.Equal(t, "first quarter up.", docs[0].Text)
	assert.Equal(t, "q1.txt", docs[0].Metadata[MetaFileName])
	assert.Equal(t, "text/plain", docs[0].Metadata[MetaFileType])
	assert.Equal(t, int64(17), docs[0].Metadata[MetaFileSize])
	assert.Equal(t, "2024-04-01", docs[0].Metadata[MetaCreationDate])
	assert.Equal(t, "2024-04-02", docs[0].Metadata[MetaLastModifiedDate])

	assert.Equal(t, "Summary page", docs[1].Text)
}

func TestGCSLoaderRecursive(t *testing.T) {
	srv := fakeBucket(t, "docs-bucket", []fakeObject{
		{Name: "a.txt", Size: "1", body: "a"},
		{Name: "nested/b.txt", Size: "1", body: "b"},
	})
	defer srv.Close()

	docs, err := newTestGCSLoader(t, srv, "docs-bucket", Options{Recursive: true}).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestGCSLoaderEmptyBucket(t *testing.T) {
	srv := fakeBucket(t, "docs-bucket", nil)
	defer srv.Close()

	_, err := newTestGCSLoader(t, srv, "docs-bucket", Options{}).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestGCSLoaderMissingBucket(t *testing.T) {
	srv := fakeBucket(t, "docs-bucket", nil)
	defer srv.Close()

	_, err := newTestGCSLoader(t, srv, "unknown-bucket", Options{}).Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsUnauthorized(&googleapi.Error{Code: 403}))
	assert.True(t, IsUnauthorized(&googleapi.Error{Code: 401}))
	assert.False(t, IsUnauthorized(&googleapi.Error{Code: 404}))
	assert.True(t, IsNotFound(&googleapi.Error{Code: 404}))
}
