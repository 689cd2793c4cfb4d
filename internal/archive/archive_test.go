package archive

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRoundTrip(t *testing.T) {
	var b Builder
	b.Modified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.Add("doc-part01.pdf", []byte("%PDF-1.4 one")))
	require.NoError(t, b.Add("doc-part02.pdf", []byte("%PDF-1.4 two")))
	assert.Equal(t, 2, b.Len())

	data, err := b.Bytes()
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "doc-part01.pdf", zr.File[0].Name)
	assert.Equal(t, "doc-part02.pdf", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 two", string(got))
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	var b Builder
	require.NoError(t, b.Add("a.jpg", nil))
	assert.ErrorIs(t, b.Add("a.jpg", nil), ErrDuplicateName)
	assert.Error(t, b.Add("", nil))
}

func TestEmptyArchive(t *testing.T) {
	var b Builder
	data, err := b.Bytes()
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}
