package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/minitools/internal/imagepdf"
)

// fixture builds an n-page PDF; page i is (i+1)*10 pixels wide so pages differ.
func fixture(t *testing.T, n int) []byte {
	t.Helper()
	imgs := make([]imagepdf.Image, n)
	for i := range imgs {
		img := image.NewRGBA(image.Rect(0, 0, (i+1)*10, 20))
		img.Set(0, 0, color.RGBA{B: 255, A: 255})
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		imgs[i] = imagepdf.Image{Name: fmt.Sprintf("p%d.png", i+1), Data: buf.Bytes()}
	}
	res, err := imagepdf.Build(context.Background(), imgs, imagepdf.DefaultOptions())
	require.NoError(t, err)
	return res.Data
}

func TestPageCount(t *testing.T) {
	o := New()
	n, err := o.PageCount(fixture(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = o.PageCount([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	o := New()
	assert.NoError(t, o.Validate(fixture(t, 1)))
	assert.Error(t, o.Validate([]byte("%PDF-1.4 garbage")))
}

func TestAssemble(t *testing.T) {
	o := New()
	src := fixture(t, 5)

	docs, err := o.Assemble(context.Background(), src, [][]int{{0, 2, 4}, {1, 2}, {3}})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, want := range []int{3, 2, 1} {
		n, err := o.PageCount(docs[i])
		require.NoError(t, err)
		assert.Equal(t, want, n, "document %d", i+1)
	}

	_, err = o.Assemble(context.Background(), src, nil)
	assert.ErrorIs(t, err, ErrNoPages)
	_, err = o.Assemble(context.Background(), src, [][]int{{0}, {}})
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestAssembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Assemble(ctx, fixture(t, 2), [][]int{{0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge(t *testing.T) {
	o := New()
	a, b := fixture(t, 2), fixture(t, 3)

	out, err := o.Merge(context.Background(), [][]byte{a, b})
	require.NoError(t, err)
	n, err := o.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	single, err := o.Merge(context.Background(), [][]byte{a})
	require.NoError(t, err)
	assert.Equal(t, a, single)

	_, err = o.Merge(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/doc.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	data, err := Fetch(context.Background(), srv.URL+"/doc.pdf#page=2")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = Fetch(context.Background(), srv.URL+"/missing.pdf")
	assert.ErrorContains(t, err, "http 404")

	p := filepath.Join(t.TempDir(), "local.pdf")
	require.NoError(t, os.WriteFile(p, []byte("local"), 0o644))
	data, err = Fetch(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	_, err = Fetch(context.Background(), "s3://nobucket")
	assert.ErrorContains(t, err, "invalid s3 url")

	assert.True(t, IsRemote("s3://b/k"))
	assert.False(t, IsRemote("/tmp/x.pdf"))
}
