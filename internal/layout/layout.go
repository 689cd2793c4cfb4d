// Package layout computes page geometry for placing raster images on PDF pages.
//
// All lengths are in PDF points (1/72 inch) unless a name says otherwise.
// Image dimensions are in pixels.
package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// PointsPerPixel maps pixels to points assuming 96 dots per inch (72/96).
	PointsPerPixel = 0.75
	// MinAutoSide is the smallest page side produced by PageSizeAuto.
	MinAutoSide = 72.0
	// DefaultMaxSide is the longest image side kept by Downscale callers by default.
	DefaultMaxSide = 2000
)

var (
	// ErrInvalidDimensions is returned when an image or box has a non-positive side.
	ErrInvalidDimensions = errors.New("layout: invalid dimensions")
	// ErrUnknownPageSize is returned by ParsePageSize for unrecognised names.
	ErrUnknownPageSize = errors.New("layout: unknown page size")
	// ErrUnknownFitMode is returned by ParseFitMode for unrecognised names.
	ErrUnknownFitMode = errors.New("layout: unknown fit mode")
)

// Fixed paper sizes.
var (
	Letter = Size{Width: 612, Height: 792}
	A4     = Size{Width: 595.28, Height: 841.89}
)

// Size is a width/height pair in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect places drawable content. X and Y are offsets from the lower-left
// corner of the enclosing box; under Cover they can be negative.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageSize selects how the page box of an image page is chosen.
type PageSize int

const (
	PageSizeA4 PageSize = iota
	PageSizeLetter
	PageSizeAuto
)

func (p PageSize) String() string {
	switch p {
	case PageSizeA4:
		return "a4"
	case PageSizeLetter:
		return "letter"
	case PageSizeAuto:
		return "auto"
	}
	return fmt.Sprintf("PageSize(%d)", int(p))
}

// ParsePageSize accepts "a4", "letter" and "auto" in any case.
func ParsePageSize(s string) (PageSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a4":
		return PageSizeA4, nil
	case "letter":
		return PageSizeLetter, nil
	case "auto", "fit", "image":
		return PageSizeAuto, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPageSize, s)
}

func (p PageSize) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PageSize) UnmarshalText(b []byte) error {
	v, err := ParsePageSize(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// FitMode selects how an image is scaled into its box.
type FitMode int

const (
	// Contain keeps the whole image visible, letterboxing the short axis.
	Contain FitMode = iota
	// Cover fills the whole box, overflowing the long axis.
	Cover
)

func (f FitMode) String() string {
	switch f {
	case Contain:
		return "contain"
	case Cover:
		return "cover"
	}
	return fmt.Sprintf("FitMode(%d)", int(f))
}

// ParseFitMode accepts "contain" and "cover" in any case.
func ParseFitMode(s string) (FitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contain":
		return Contain, nil
	case "cover":
		return Cover, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFitMode, s)
}

func (f FitMode) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FitMode) UnmarshalText(b []byte) error {
	v, err := ParseFitMode(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ResolvePageBox returns the page size for an image of the given pixel size.
// Fixed paper sizes ignore the image.
func ResolvePageBox(policy PageSize, imageWidthPx, imageHeightPx int) Size {
	switch policy {
	case PageSizeLetter:
		return Letter
	case PageSizeAuto:
		return Size{
			Width:  math.Max(MinAutoSide, float64(imageWidthPx)*PointsPerPixel),
			Height: math.Max(MinAutoSide, float64(imageHeightPx)*PointsPerPixel),
		}
	default:
		return A4
	}
}

// ContentArea is the drawable region of a page after removing the margin on
// every side. Each side is floored at one point so a huge margin degrades to
// a tiny box instead of failing.
func ContentArea(page Size, margin float64) Size {
	return Size{
		Width:  math.Max(1, page.Width-2*margin),
		Height: math.Max(1, page.Height-2*margin),
	}
}

// FitRect scales an image into box according to mode and centres it.
func FitRect(imageWidthPx, imageHeightPx int, box Size, mode FitMode) (Rect, error) {
	if imageWidthPx <= 0 || imageHeightPx <= 0 || !(box.Width > 0) || !(box.Height > 0) {
		return Rect{}, fmt.Errorf("%w: image %dx%d, box %gx%g",
			ErrInvalidDimensions, imageWidthPx, imageHeightPx, box.Width, box.Height)
	}
	imageRatio := float64(imageWidthPx) / float64(imageHeightPx)
	boxRatio := box.Width / box.Height

	var w, h float64
	wider := imageRatio > boxRatio
	if mode == Cover {
		wider = !wider
	}
	if wider {
		w = box.Width
		h = w / imageRatio
	} else {
		h = box.Height
		w = h * imageRatio
	}
	// The derived side can land one ulp on the wrong side of the box.
	if mode == Cover {
		w, h = math.Max(w, box.Width), math.Max(h, box.Height)
	} else {
		w, h = math.Min(w, box.Width), math.Min(h, box.Height)
	}
	return Rect{
		X:      (box.Width - w) / 2,
		Y:      (box.Height - h) / 2,
		Width:  w,
		Height: h,
	}, nil
}

// Placement is the full geometry of one image page.
type Placement struct {
	Page Size `json:"page"`
	// Content is the margin-reduced drawable area in page coordinates.
	Content Rect `json:"content"`
	// Image is where the image is drawn, in page coordinates.
	Image Rect `json:"image"`
}

// Place resolves the page box, removes the margin and fits the image into
// what remains.
func Place(policy PageSize, mode FitMode, margin float64, imageWidthPx, imageHeightPx int) (Placement, error) {
	if margin < 0 || math.IsNaN(margin) {
		margin = 0
	}
	page := ResolvePageBox(policy, imageWidthPx, imageHeightPx)
	area := ContentArea(page, margin)
	r, err := FitRect(imageWidthPx, imageHeightPx, area, mode)
	if err != nil {
		return Placement{}, err
	}
	r.X += margin
	r.Y += margin
	return Placement{
		Page:    page,
		Content: Rect{X: margin, Y: margin, Width: area.Width, Height: area.Height},
		Image:   r,
	}, nil
}

// Downscale shrinks w×h so the longer side is at most maxSide, keeping the
// aspect ratio. It reports whether any scaling happened.
func Downscale(w, h, maxSide int) (int, int, bool) {
	longer := w
	if h > longer {
		longer = h
	}
	if maxSide <= 0 || longer <= maxSide {
		return w, h, false
	}
	ratio := float64(maxSide) / float64(longer)
	nw := int(math.Round(float64(w) * ratio))
	nh := int(math.Round(float64(h) * ratio))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh, true
}
