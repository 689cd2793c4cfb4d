package imagepdf

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/minitools/internal/layout"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func TestPrepareJPEGPassThrough(t *testing.T) {
	data := jpegBytes(t, 40, 30)
	p, err := Prepare(Image{Name: "a.jpg", Data: data}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "JPG", p.Type)
	assert.Equal(t, data, p.Data)
	assert.Equal(t, 40, p.Width)
	assert.Equal(t, 30, p.Height)
	assert.False(t, p.Scaled)
}

func TestPrepareDownscale(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxSide = 50

	p, err := Prepare(Image{Name: "big.jpg", Data: jpegBytes(t, 200, 100)}, opts)
	require.NoError(t, err)
	assert.True(t, p.Scaled)
	assert.Equal(t, "JPG", p.Type)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(p.Data))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height)

	p, err = Prepare(Image{Name: "big.png", Data: pngBytes(t, 60, 120)}, opts)
	require.NoError(t, err)
	assert.Equal(t, "PNG", p.Type)
	assert.Equal(t, 25, p.Width)
	assert.Equal(t, 50, p.Height)

	opts.Downscale = false
	p, err = Prepare(Image{Name: "big.png", Data: pngBytes(t, 60, 120)}, opts)
	require.NoError(t, err)
	assert.False(t, p.Scaled)
	assert.Equal(t, 60, p.Width)
}

func TestPrepareConvertsOtherFormats(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 8, 6), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))

	p, err := Prepare(Image{Name: "a.gif", Data: buf.Bytes()}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "PNG", p.Type)
	_, err = png.DecodeConfig(bytes.NewReader(p.Data))
	assert.NoError(t, err)
}

func TestPrepareRejectsGarbage(t *testing.T) {
	_, err := Prepare(Image{Name: "x.jpg", Data: []byte("not an image")}, DefaultOptions())
	assert.ErrorContains(t, err, "x.jpg")
}

// hugePNG returns a tiny PNG whose header claims w x h pixels.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	b := pngBytes(t, 2, 2)
	// signature(8) length(4) "IHDR"(4) then width and height
	binary.BigEndian.PutUint32(b[16:], w)
	binary.BigEndian.PutUint32(b[20:], h)
	binary.BigEndian.PutUint32(b[29:], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestPrepareRejectsOversizedImages(t *testing.T) {
	// declared size alone is enough to refuse; pixel data is never decoded
	_, err := Prepare(Image{Name: "bomb.png", Data: hugePNG(t, 100000, 100000)}, DefaultOptions())
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.ErrorContains(t, err, "bomb.png")

	opts := DefaultOptions()
	opts.MaxPixels = 100
	_, err = Prepare(Image{Name: "a.png", Data: pngBytes(t, 20, 10)}, opts)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	_, err = Prepare(Image{Name: "a.jpg", Data: jpegBytes(t, 20, 10)}, opts)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	opts.MaxPixels = 200
	_, err = Prepare(Image{Name: "a.png", Data: pngBytes(t, 20, 10)}, opts)
	assert.NoError(t, err)
}

func TestBuild(t *testing.T) {
	opts := DefaultOptions()
	opts.PageSize = layout.PageSizeLetter
	opts.Fit = layout.Cover

	res, err := Build(context.Background(), []Image{
		{Name: "wide.png", Data: pngBytes(t, 200, 100)},
		{Name: "tall.jpg", Data: jpegBytes(t, 100, 300)},
	}, opts)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF-")))
	require.Len(t, res.Pages, 2)

	want, err := layout.Place(layout.PageSizeLetter, layout.Cover, DefaultMargin, 200, 100)
	require.NoError(t, err)
	if diff := cmp.Diff(want, res.Pages[0], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("page 1 placement mismatch (-want +got):\n%s", diff)
	}
	assert.Less(t, res.Pages[0].Image.X, 0.0+DefaultMargin)
}

func TestBuildAutoPageSize(t *testing.T) {
	opts := DefaultOptions()
	opts.PageSize = layout.PageSizeAuto
	opts.Margin = 0
	res, err := Build(context.Background(), []Image{{Name: "a.png", Data: pngBytes(t, 400, 200)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, layout.Size{Width: 300, Height: 150}, res.Pages[0].Page)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoImages)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, []Image{{Name: "a.png", Data: pngBytes(t, 4, 4)}}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
