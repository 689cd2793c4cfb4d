package orchestrator

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/local/minitools/internal/imagerender"
	"github.com/local/minitools/internal/layout"
	"github.com/local/minitools/internal/pdfops"
	"github.com/local/minitools/internal/tools"
)

// fileFields are the multipart fields read as inputs, in order.
var fileFields = []string{"files", "file"}

// readInputs returns the uploaded files followed by any remote "url" inputs.
func (o *Orchestrator) readInputs(ctx context.Context, form *multipart.Form) ([]tools.Input, error) {
	var inputs []tools.Input
	for _, field := range fileFields {
		for _, hdr := range form.File[field] {
			data, err := readPart(hdr)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", hdr.Filename, err)
			}
			inputs = append(inputs, tools.Input{Name: hdr.Filename, Data: data})
		}
	}
	for _, ref := range form.Value["url"] {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if !o.opts.RemoteInputs {
			return nil, tools.Invalid(fmt.Errorf("remote inputs are disabled"))
		}
		if !pdfops.IsRemote(ref) {
			return nil, tools.Invalid(fmt.Errorf("unsupported url %q: use http, https or s3", ref))
		}
		data, err := pdfops.Fetch(ctx, ref)
		if err != nil {
			return nil, tools.Invalid(fmt.Errorf("fetch %s: %w", ref, err))
		}
		inputs = append(inputs, tools.Input{Name: refName(ref), Data: data})
	}
	return inputs, nil
}

func readPart(hdr *multipart.FileHeader) ([]byte, error) {
	f, err := hdr.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func refName(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return "document"
}

// applyForm overrides request defaults with the form values that are present.
func applyForm(req *tools.Request, v url.Values) error {
	get := func(k string) (string, bool) {
		s := strings.TrimSpace(v.Get(k))
		return s, s != ""
	}

	if s, ok := get("page_size"); ok {
		ps, err := layout.ParsePageSize(s)
		if err != nil {
			return err
		}
		req.Images.PageSize = ps
	}
	if s, ok := get("fit"); ok {
		fm, err := layout.ParseFitMode(s)
		if err != nil {
			return err
		}
		req.Images.Fit = fm
	}
	if s, ok := get("margin"); ok {
		m, err := parseNonNegative("margin", s)
		if err != nil {
			return err
		}
		req.Images.Margin = m
	}
	if s, ok := get("downscale"); ok {
		req.Images.Downscale = parseBool(s)
	}
	if s, ok := get("max_side"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return tools.Invalid(fmt.Errorf("max_side must be a positive integer"))
		}
		req.Images.MaxSide = n
	}

	if s, ok := get("mode"); ok {
		switch tools.SplitMode(strings.ToLower(s)) {
		case tools.SplitEach:
			req.Split.Mode = tools.SplitEach
		case tools.SplitRanges:
			req.Split.Mode = tools.SplitRanges
		default:
			return tools.Invalid(fmt.Errorf("unknown split mode %q", s))
		}
	}
	if s, ok := get("ranges"); ok {
		req.Split.Ranges = s
		if v.Get("mode") == "" {
			req.Split.Mode = tools.SplitRanges
		}
	}

	if s, ok := get("scale"); ok {
		f, err := parseNonNegative("scale", s)
		if err != nil {
			return err
		}
		req.Render.Scale = f
	}
	if s, ok := get("quality"); ok {
		f, err := parseNonNegative("quality", s)
		if err != nil {
			return err
		}
		req.Render.Quality = imagerender.ClampQuality(f)
	}
	if s, ok := get("format"); ok {
		f, err := imagerender.ParseFormat(s)
		if err != nil {
			return err
		}
		req.Render.Format = f
	}
	if s, ok := get("color"); ok {
		switch imagerender.ColorMode(strings.ToLower(s)) {
		case imagerender.ColorRGB:
			req.Render.Color = imagerender.ColorRGB
		case imagerender.ColorGray, "grey", "grayscale":
			req.Render.Color = imagerender.ColorGray
		default:
			return tools.Invalid(fmt.Errorf("unknown color mode %q", s))
		}
	}
	if s, ok := get("pages"); ok {
		req.Render.Pages = s
	}
	return nil
}

func parseNonNegative(name, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, tools.Invalid(fmt.Errorf("%s must be a non-negative number", name))
	}
	return f, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
