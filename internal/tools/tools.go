// Package tools runs one document tool request end to end: validate the
// inputs, produce the complete output artifact, or fail without output.
package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/local/minitools/internal/imagepdf"
	"github.com/local/minitools/internal/imagerender"
	"github.com/local/minitools/internal/layout"
	"github.com/local/minitools/internal/pagerange"
	"github.com/local/minitools/internal/password"
	"github.com/local/minitools/internal/pdfops"
)

// Tool names a document operation.
type Tool string

const (
	ImagesToPDF Tool = "images-to-pdf"
	SplitPDF    Tool = "split-pdf"
	MergePDF    Tool = "merge-pdf"
	PDFToImages Tool = "pdf-to-images"
)

// All lists the document tools in display order.
var All = []Tool{ImagesToPDF, SplitPDF, MergePDF, PDFToImages}

// ParseTool validates a tool name.
func ParseTool(s string) (Tool, error) {
	for _, t := range All {
		if string(t) == s {
			return t, nil
		}
	}
	return "", Invalid(fmt.Errorf("unknown tool %q", s))
}

// SplitMode selects how split-pdf groups pages.
type SplitMode string

const (
	SplitEach   SplitMode = "each"
	SplitRanges SplitMode = "ranges"
)

// SplitOptions configures split-pdf. Ranges is a range expression such as "1-2; 3,5".
type SplitOptions struct {
	Mode   SplitMode `json:"mode"`
	Ranges string    `json:"ranges,omitempty"`
}

// RenderOptions configures pdf-to-images. Pages is an optional range
// expression; its groups are flattened in order.
type RenderOptions struct {
	Scale   float64               `json:"scale"`
	Quality float64               `json:"quality"`
	Format  imagerender.Format    `json:"format"`
	Color   imagerender.ColorMode `json:"color,omitempty"`
	Pages   string                `json:"pages,omitempty"`
}

// Input is one uploaded file.
type Input struct {
	Name string
	Data []byte
}

// Request is a tool invocation. Inputs travel separately from the JSON form
// so that queued jobs can keep them in the artifact store.
type Request struct {
	Tool   Tool             `json:"tool"`
	Inputs []Input          `json:"-"`
	Images imagepdf.Options `json:"images"`
	Split  SplitOptions     `json:"split"`
	Render RenderOptions    `json:"render"`
}

// Artifact is the complete output of a request.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	Pages       int    `json:"pages"`
}

const (
	ContentTypePDF = "application/pdf"
	ContentTypeZIP = "application/zip"
)

// ErrInvalidInput marks failures caused by the request rather than the service.
var ErrInvalidInput = errors.New("invalid input")

// Invalid wraps err as a user error.
func Invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// IsUserError reports whether err was caused by bad input. User errors are
// reported back verbatim and never retried.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	var rangeErr *pagerange.Error
	if errors.As(err, &rangeErr) {
		return true
	}
	for _, target := range []error{
		ErrInvalidInput,
		layout.ErrInvalidDimensions,
		layout.ErrUnknownPageSize,
		layout.ErrUnknownFitMode,
		imagepdf.ErrNoImages,
		imagepdf.ErrImageTooLarge,
		pdfops.ErrNoPages,
		pdfops.ErrNoDocuments,
		imagerender.ErrUnknownFormat,
		imagerender.ErrPageOutOfRange,
		imagerender.ErrTooManyPages,
		password.ErrNoCharset,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// BaseName derives the output base from an upload name: "dir/Report.v2.pdf" -> "Report.v2".
func BaseName(name string) string {
	base := pagerange.StripExt(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" {
		return "document"
	}
	return base
}
