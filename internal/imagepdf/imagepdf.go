// Package imagepdf turns a sequence of raster images into a PDF with one
// page per image.
package imagepdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	// registered for image.Decode / image.DecodeConfig
	_ "image/gif"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/local/minitools/internal/layout"
)

// ErrNoImages is returned by Build for an empty input list.
var ErrNoImages = errors.New("imagepdf: no images")

// ErrImageTooLarge is returned by Prepare when an image declares more pixels
// than Options.MaxPixels allows.
var ErrImageTooLarge = errors.New("imagepdf: image too large")

// DefaultMargin is the margin in points used when none is configured.
const DefaultMargin = 12

// DefaultMaxPixels bounds the decoded size of one image (about 200 MB as NRGBA).
const DefaultMaxPixels = 50_000_000

// Options controls page geometry and image preprocessing.
type Options struct {
	PageSize  layout.PageSize `json:"page_size"`
	Fit       layout.FitMode  `json:"fit"`
	Margin    float64         `json:"margin"`
	Downscale bool            `json:"downscale"`
	// MaxSide is the longest side kept when Downscale is set; 0 means layout.DefaultMaxSide.
	MaxSide int `json:"max_side,omitempty"`
	// MaxPixels rejects images with a larger width*height; 0 means DefaultMaxPixels.
	MaxPixels int `json:"-"`
}

// DefaultOptions mirrors the defaults of the web form: A4, contain, 12pt, downscale on.
func DefaultOptions() Options {
	return Options{
		PageSize:  layout.PageSizeA4,
		Fit:       layout.Contain,
		Margin:    DefaultMargin,
		Downscale: true,
		MaxSide:   layout.DefaultMaxSide,
		MaxPixels: DefaultMaxPixels,
	}
}

// Image is one named source image.
type Image struct {
	Name string
	Data []byte
}

// Prepared is an image ready for embedding.
type Prepared struct {
	Data   []byte
	Type   string // "JPG" or "PNG"
	Width  int
	Height int
	Scaled bool
}

// Result is the generated document together with the geometry of each page.
type Result struct {
	Data  []byte
	Pages []layout.Placement
}

// Prepare decodes img and normalises it for embedding: JPEGs pass through
// unless they need downscaling, every other format is re-encoded as 8-bit PNG.
func Prepare(img Image, opts Options) (Prepared, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%s: decode image: %w", img.Name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Prepared{}, fmt.Errorf("%s: %w", img.Name, layout.ErrInvalidDimensions)
	}
	limit := int64(opts.MaxPixels)
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > limit {
		return Prepared{}, fmt.Errorf("%s: %dx%d exceeds %d pixels: %w", img.Name, cfg.Width, cfg.Height, limit, ErrImageTooLarge)
	}

	maxSide := opts.MaxSide
	if maxSide <= 0 {
		maxSide = layout.DefaultMaxSide
	}
	w, h, scale := cfg.Width, cfg.Height, false
	if opts.Downscale {
		w, h, scale = layout.Downscale(cfg.Width, cfg.Height, maxSide)
	}

	if format == "jpeg" && !scale {
		return Prepared{Data: img.Data, Type: "JPG", Width: w, Height: h}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%s: decode image: %w", img.Name, err)
	}

	var buf bytes.Buffer
	if format == "jpeg" {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
			return Prepared{}, fmt.Errorf("%s: encode jpeg: %w", img.Name, err)
		}
		log.Debug().Str("image", img.Name).Int("width", w).Int("height", h).Msg("downscaled jpeg")
		return Prepared{Data: buf.Bytes(), Type: "JPG", Width: w, Height: h, Scaled: true}, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if scale {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	}
	if err := png.Encode(&buf, dst); err != nil {
		return Prepared{}, fmt.Errorf("%s: encode png: %w", img.Name, err)
	}
	return Prepared{Data: buf.Bytes(), Type: "PNG", Width: w, Height: h, Scaled: scale}, nil
}

// Build writes one page per image, in order. Each image is fitted into the
// margin-reduced page and clipped to it, so Cover overflow never paints
// into the margin.
func Build(ctx context.Context, images []Image, opts Options) (Result, error) {
	if len(images) == 0 {
		return Result{}, ErrNoImages
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: layout.A4.Width, Ht: layout.A4.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("minitools", true)

	res := Result{Pages: make([]layout.Placement, 0, len(images))}
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		p, err := Prepare(img, opts)
		if err != nil {
			return Result{}, err
		}
		pl, err := layout.Place(opts.PageSize, opts.Fit, opts.Margin, p.Width, p.Height)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", img.Name, err)
		}

		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pl.Page.Width, Ht: pl.Page.Height})
		name := fmt.Sprintf("img%d", i)
		imgOpts := gofpdf.ImageOptions{ImageType: p.Type, AllowNegativePosition: true}
		pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(p.Data))

		// gofpdf measures y from the top edge of the page.
		clipTop := pl.Page.Height - pl.Content.Y - pl.Content.Height
		imgTop := pl.Page.Height - pl.Image.Y - pl.Image.Height
		pdf.ClipRect(pl.Content.X, clipTop, pl.Content.Width, pl.Content.Height, false)
		pdf.ImageOptions(name, pl.Image.X, imgTop, pl.Image.Width, pl.Image.Height, false, imgOpts, 0, "")
		pdf.ClipEnd()

		if pdf.Err() {
			return Result{}, fmt.Errorf("%s: %w", img.Name, pdf.Error())
		}
		res.Pages = append(res.Pages, pl)

		log.Debug().
			Str("image", img.Name).
			Int("page", i+1).
			Float64("page_w", pl.Page.Width).
			Float64("page_h", pl.Page.Height).
			Bool("scaled", p.Scaled).
			Msg("added image page")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Result{}, fmt.Errorf("write pdf: %w", err)
	}
	res.Data = buf.Bytes()
	return res, nil
}
