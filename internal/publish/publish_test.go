package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/fault"
)

// fakeS3 answers bucket lookups and object puts.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  bool
	made    bool
	puts    []string
	putType string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = io.Copy(io.Discard, r.Body)

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucketOnly := len(parts) == 1 || parts[1] == ""
	switch {
	case r.Method == http.MethodHead && bucketOnly:
		if !f.bucket {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && bucketOnly:
		f.bucket = true
		f.made = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		f.puts = append(f.puts, parts[1])
		f.putType = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func storage(t *testing.T, fake *fakeS3) config.StorageConfig {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return config.StorageConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "videos",
		Prefix:    "/renders/",
		AccessKey: "minio",
		SecretKey: "minio123",
	}
}

func artifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0644))
	return path
}

func TestUpload(t *testing.T) {
	fake := &fakeS3{bucket: true}
	p, err := New(storage(t, fake), nil)
	require.NoError(t, err)

	obj, err := p.Upload(context.Background(), "job-1", artifact(t))
	require.NoError(t, err)

	assert.Equal(t, "renders/job-1/out.mp4", obj.Key)
	assert.Equal(t, int64(18), obj.Size)
	assert.True(t, strings.HasSuffix(obj.URL, "/videos/renders/job-1/out.mp4"))
	assert.Equal(t, []string{"renders/job-1/out.mp4"}, fake.puts)
	assert.Equal(t, "video/mp4", fake.putType)
	assert.False(t, fake.made)
}

func TestUploadCreatesBucket(t *testing.T) {
	fake := &fakeS3{}
	p, err := New(storage(t, fake), nil)
	require.NoError(t, err)

	_, err = p.Upload(context.Background(), "job-2", artifact(t))
	require.NoError(t, err)
	assert.True(t, fake.made)
	assert.Len(t, fake.puts, 1)
}

func TestUploadMissingFile(t *testing.T) {
	p, err := New(storage(t, &fakeS3{bucket: true}), nil)
	require.NoError(t, err)
	_, err = p.Upload(context.Background(), "job", filepath.Join(t.TempDir(), "nope.mp4"))
	assert.ErrorIs(t, err, fault.ErrPrecondition)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(config.StorageConfig{Endpoint: "localhost:9000"}, nil)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType("a/b/OUT.MP4"))
	assert.Equal(t, "video/webm", ContentType("x.webm"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}
