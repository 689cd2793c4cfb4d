package filetype

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	d := New()

	info := d.Detect("a.png", encode(t, "png"))
	assert.Equal(t, "image/png", info.MIMEType)
	assert.Equal(t, KindImage, info.Kind)
	assert.True(t, info.Supported)

	info = d.Detect("photo.bin", encode(t, "jpeg"))
	assert.Equal(t, "image/jpeg", info.MIMEType)
	assert.Equal(t, KindImage, info.Kind)

	info = d.Detect("doc.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"))
	assert.Equal(t, "application/pdf", info.MIMEType)
	assert.Equal(t, KindPDF, info.Kind)

	info = d.Detect("notes.pdf", []byte("just some text"))
	assert.Equal(t, "text/plain", info.MIMEType)
	assert.False(t, info.Supported)
	assert.Equal(t, KindUnknown, info.Kind)
}

func TestRequire(t *testing.T) {
	d := New()
	_, err := d.Require("x.png", encode(t, "png"), KindImage)
	assert.NoError(t, err)

	_, err = d.Require("x.png", encode(t, "png"), KindPDF)
	assert.ErrorContains(t, err, "expected pdf")
}
