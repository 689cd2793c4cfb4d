package imagerender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/pagerange"
)

// Format is the raster output format.
type Format string

const (
	FormatJPG Format = "jpg"
	FormatPNG Format = "png"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

const (
	DefaultScale   = 1.5
	DefaultQuality = 0.85
	MinQuality     = 0.1
	MaxQuality     = 1.0
	MaxScale       = 6.0
)

var (
	ErrUnknownFormat  = errors.New("imagerender: unknown image format")
	ErrPageOutOfRange = errors.New("imagerender: page out of range")
	ErrTooManyPages   = errors.New("imagerender: too many pages selected")
)

// ParseFormat accepts jpg/jpeg/png, case-insensitive. Empty means jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpg", "jpeg":
		return FormatJPG, nil
	case "png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Options controls a render run. Zero values mean defaults.
type Options struct {
	Scale   float64   `json:"scale,omitempty"`
	Format  Format    `json:"format,omitempty"`
	Quality float64   `json:"quality,omitempty"`
	Color   ColorMode `json:"color,omitempty"`
	// Pages are 0-based page indexes; empty renders every page.
	Pages []int `json:"pages,omitempty"`
	// MaxPages bounds the number of rendered pages; 0 is unlimited.
	MaxPages int `json:"-"`
}

func (o Options) normalized() Options {
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.Scale > MaxScale {
		o.Scale = MaxScale
	}
	if o.Format == "" {
		o.Format = FormatJPG
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	o.Quality = ClampQuality(o.Quality)
	if o.Color == "" {
		o.Color = ColorRGB
	}
	return o
}

// ClampQuality bounds q to [MinQuality, MaxQuality].
func ClampQuality(q float64) float64 {
	return max(MinQuality, min(MaxQuality, q))
}

// DPI converts a scale factor relative to 72 DPI.
func DPI(scale float64) float64 { return 72 * scale }

// Page is one rendered page.
type Page struct {
	Index  int // 0-based
	Data   []byte
	Width  int
	Height int
}

// Render rasterises the selected pages of the PDF in data, in selection order.
func Render(ctx context.Context, data []byte, opts Options) ([]Page, error) {
	opts = opts.normalized()
	if opts.Format != FormatJPG && opts.Format != FormatPNG {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	pages := opts.Pages
	if len(pages) == 0 {
		pages = pagerange.All(total)
	}
	if opts.MaxPages > 0 && len(pages) > opts.MaxPages {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPages, len(pages), opts.MaxPages)
	}

	dpi := DPI(opts.Scale)
	out := make([]Page, 0, len(pages))
	for _, idx := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= total {
			return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, idx+1, total)
		}
		img, err := doc.ImageDPI(idx, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", idx+1, err)
		}
		b, err := encode(img, opts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", idx+1, err)
		}
		bounds := img.Bounds()
		out = append(out, Page{Index: idx, Data: b, Width: bounds.Dx(), Height: bounds.Dy()})

		log.Debug().
			Int("page", idx+1).
			Int("width", bounds.Dx()).
			Int("height", bounds.Dy()).
			Str("format", string(opts.Format)).
			Float64("dpi", dpi).
			Int("size", len(b)).
			Msg("rendered page")
	}
	return out, nil
}

func encode(img image.Image, opts Options) ([]byte, error) {
	if opts.Color == ColorGray {
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
		img = gray
	}

	var buf bytes.Buffer
	switch opts.Format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	default:
		q := int(opts.Quality*100 + 0.5)
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	}
	return buf.Bytes(), nil
}
