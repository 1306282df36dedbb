package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt4o-speed-bench/internal/config"
)

// fakeS3 answers the handful of S3 calls the client makes. Uploaded bodies
// are not decoded (minio-go may use aws-chunked framing over plain HTTP);
// reads are served from objects.
type fakeS3 struct {
	mu            sync.Mutex
	bucketExists  bool
	bucketCreated bool
	puts          map[string]string // key -> content type
	objects       map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/bench")
	key = strings.TrimPrefix(key, "/")

	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.bucketExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.bucketCreated = true
		f.bucketExists = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.puts[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, body)
		}
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeStore(t *testing.T, bucketExists bool) (*fakeS3, config.ObjectStoreConfig) {
	t.Helper()
	fake := &fakeS3{bucketExists: bucketExists, puts: map[string]string{}, objects: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	return fake, config.ObjectStoreConfig{
		Endpoint:        strings.TrimPrefix(server.URL, "http://"),
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "bench",
		Region:          "us-east-1",
	}
}

func TestNewMinioClient_NotConfigured(t *testing.T) {
	_, err := NewMinioClient(context.Background(), config.ObjectStoreConfig{Endpoint: "localhost:9000"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewMinioClient_CreatesMissingBucket(t *testing.T) {
	fake, cfg := newFakeStore(t, false)

	mc, err := NewMinioClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "bench", mc.BucketName)
	assert.True(t, fake.bucketCreated)
}

func TestPublishArtifacts(t *testing.T) {
	fake, cfg := newFakeStore(t, true)
	mc, err := NewMinioClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, fake.bucketCreated)

	dir := t.TempDir()
	var paths []string
	for name, content := range map[string]string{
		"test_results_20250101_120000.csv": "file,speed\n",
		"test_report_20250101_120000.md":   "# Report\n",
	} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		paths = append(paths, p)
	}

	published, err := mc.PublishArtifacts(context.Background(), "run-1", paths)
	require.NoError(t, err)
	require.Len(t, published, 2)

	for _, p := range paths {
		assert.Equal(t, "runs/run-1/"+filepath.Base(p), published[p])
	}
	assert.Equal(t, "text/csv; charset=utf-8", fake.puts["runs/run-1/test_results_20250101_120000.csv"])
	assert.Equal(t, "text/markdown; charset=utf-8", fake.puts["runs/run-1/test_report_20250101_120000.md"])

	_, err = mc.PublishArtifacts(context.Background(), "run-1", []string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestGetFileReader(t *testing.T) {
	fake, cfg := newFakeStore(t, true)
	fake.objects["runs/run-1/results.csv"] = "file,speed\na.mp3,2\n"

	mc, err := NewMinioClient(context.Background(), cfg)
	require.NoError(t, err)

	rc, size, err := mc.GetFileReader(context.Background(), "runs/run-1/results.csv")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, "file,speed\na.mp3,2\n", string(data))

	_, _, err = mc.GetFileReader(context.Background(), "runs/run-1/nope.csv")
	assert.Error(t, err)
}

func TestContentTypeAndPrefix(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("chart.png"))
	assert.Equal(t, "application/json", ContentType("results.json"))
	assert.Equal(t, "application/octet-stream", ContentType("blob"))
	assert.Equal(t, "runs/abc/", RunPrefix("abc"))
}
