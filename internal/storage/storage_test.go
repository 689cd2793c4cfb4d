package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/minitools/internal/store"
)

func TestSealRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	data := []byte("%PDF-1.7 artifact bytes")

	sealed, err := seal(data, secret, 1000)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sealed), sealMagic))
	assert.NotContains(t, string(sealed), "artifact bytes")

	plain, err := open(sealed, secret, 1000)
	require.NoError(t, err)
	assert.Equal(t, data, plain)

	_, err = open(sealed, []byte("wrong"), 1000)
	assert.ErrorContains(t, err, "GCM decryption failed")

	_, err = open(data, secret, 1000)
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestSealedStore(t *testing.T) {
	ctx := context.Background()
	inner := store.NewMemoryArtifacts()

	assert.Same(t, inner, NewSealed(inner, "").(*store.MemoryArtifacts))

	s := NewSealed(inner, "secret").(*Sealed)
	s.iterations = 1000
	require.NoError(t, s.Put(ctx, "k", []byte("payload")))

	raw, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, "payload", string(raw))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// fakeS3 is a path-style S3 endpoint for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[key] = b
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{bucket: "artifacts", objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3Store(ctx, S3Options{
		Bucket:          "artifacts",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		Prefix:          "minitools/",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Put(ctx, store.OutputKey("j1"), []byte("zip bytes")))
	fake.mu.Lock()
	assert.Equal(t, "zip bytes", string(fake.objects["minitools/jobs/j1/out"]))
	fake.mu.Unlock()

	got, err := s.Get(ctx, store.OutputKey("j1"))
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(got))

	require.NoError(t, s.Delete(ctx, store.OutputKey("j1")))
	_, err = s.Get(ctx, store.OutputKey("j1"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Options{})
	assert.ErrorContains(t, err, "bucket")
}
