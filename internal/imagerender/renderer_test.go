package imagerender

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/minitools/internal/imagepdf"
	"github.com/local/minitools/internal/layout"
)

func fixturePDF(t *testing.T, pages int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	imgs := make([]imagepdf.Image, pages)
	for i := range imgs {
		imgs[i] = imagepdf.Image{Name: "a.png", Data: buf.Bytes()}
	}
	opts := imagepdf.DefaultOptions()
	opts.PageSize = layout.PageSizeLetter
	res, err := imagepdf.Build(context.Background(), imgs, opts)
	require.NoError(t, err)
	return res.Data
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJPG, "JPEG": FormatJPG, "jpg": FormatJPG, " png ": FormatPNG} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("gif")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Equal(t, "image/jpeg", FormatJPG.ContentType())
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.normalized()
	assert.Equal(t, DefaultScale, o.Scale)
	assert.Equal(t, DefaultQuality, o.Quality)
	assert.Equal(t, FormatJPG, o.Format)
	assert.Equal(t, ColorRGB, o.Color)
	assert.InDelta(t, 108.0, DPI(o.Scale), 1e-9)

	assert.Equal(t, MinQuality, ClampQuality(0.01))
	assert.Equal(t, MaxQuality, ClampQuality(3))
	assert.Equal(t, 0.5, ClampQuality(0.5))
	assert.Equal(t, MaxScale, Options{Scale: 100}.normalized().Scale)
}

func TestRender(t *testing.T) {
	data := fixturePDF(t, 3)

	pages, err := Render(context.Background(), data, Options{Scale: 0.5, Format: FormatPNG, Pages: []int{2, 0}})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[0].Index)
	assert.Equal(t, 0, pages[1].Index)

	// letter at 36 DPI is 306x396 pixels
	assert.InDelta(t, 306, pages[0].Width, 2)
	assert.InDelta(t, 396, pages[0].Height, 2)
	cfg, err := png.DecodeConfig(bytes.NewReader(pages[0].Data))
	require.NoError(t, err)
	assert.Equal(t, pages[0].Width, cfg.Width)
	assert.Equal(t, pages[0].Height, cfg.Height)
	_, err = png.DecodeConfig(bytes.NewReader(pages[1].Data))
	assert.NoError(t, err)
}

func TestRenderAllPagesByDefault(t *testing.T) {
	pages, err := Render(context.Background(), fixturePDF(t, 3), Options{Scale: 0.2, Format: FormatPNG})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
	}

	_, err = Render(context.Background(), fixturePDF(t, 3), Options{Scale: 0.2, MaxPages: 2})
	assert.ErrorIs(t, err, ErrTooManyPages)
}

func TestRenderAllPagesGray(t *testing.T) {
	pages, err := Render(context.Background(), fixturePDF(t, 2), Options{Scale: 0.25, Color: ColorGray})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	img, _, err := image.Decode(bytes.NewReader(pages[0].Data))
	require.NoError(t, err)
	_, gray := img.(*image.Gray)
	assert.True(t, gray)
}

func TestRenderErrors(t *testing.T) {
	data := fixturePDF(t, 2)

	_, err := Render(context.Background(), data, Options{Pages: []int{5}})
	assert.ErrorIs(t, err, ErrPageOutOfRange)

	_, err = Render(context.Background(), data, Options{MaxPages: 1})
	assert.ErrorIs(t, err, ErrTooManyPages)

	_, err = Render(context.Background(), data, Options{Format: "tiff"})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Render(ctx, data, Options{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Render(context.Background(), []byte("nope"), Options{})
	assert.Error(t, err)
}
