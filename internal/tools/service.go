package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/archive"
	"github.com/local/minitools/internal/filetype"
	"github.com/local/minitools/internal/imagepdf"
	"github.com/local/minitools/internal/imagerender"
	"github.com/local/minitools/internal/metrics"
	"github.com/local/minitools/internal/pagerange"
	"github.com/local/minitools/internal/pdfops"
)

// Defaults are applied by NewRequest.
type Defaults struct {
	Images         imagepdf.Options
	RenderScale    float64
	JPEGQuality    float64
	MaxRenderPages int
}

// DefaultDefaults matches the web form defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Images:         imagepdf.DefaultOptions(),
		RenderScale:    imagerender.DefaultScale,
		JPEGQuality:    imagerender.DefaultQuality,
		MaxRenderPages: 200,
	}
}

// Service executes tool requests. It is stateless and safe for concurrent use.
type Service struct {
	ops      *pdfops.Ops
	detector *filetype.Detector
	defaults Defaults
	now      func() time.Time
}

// NewService creates a Service.
func NewService(d Defaults) *Service {
	return &Service{
		ops:      pdfops.New(),
		detector: filetype.New(),
		defaults: d,
		now:      time.Now,
	}
}

// Defaults returns the configured defaults.
func (s *Service) Defaults() Defaults { return s.defaults }

// NewRequest returns a request for t with every option at its default.
func (s *Service) NewRequest(t Tool) Request {
	return Request{
		Tool:   t,
		Images: s.defaults.Images,
		Split:  SplitOptions{Mode: SplitEach},
		Render: RenderOptions{
			Scale:   s.defaults.RenderScale,
			Quality: s.defaults.JPEGQuality,
			Format:  imagerender.FormatJPG,
			Color:   imagerender.ColorRGB,
		},
	}
}

// Run executes req and returns its complete artifact.
func (s *Service) Run(ctx context.Context, req Request) (art Artifact, err error) {
	start := time.Now()
	defer func() {
		result := "success"
		switch {
		case err == nil:
			metrics.AddPages(string(req.Tool), art.Pages)
		case IsUserError(err):
			result = "invalid"
		case ctx.Err() != nil:
			result = "cancelled"
		default:
			result = "error"
		}
		metrics.ObserveTool(string(req.Tool), result, time.Since(start))

		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("tool", string(req.Tool)).
			Int("inputs", len(req.Inputs)).
			Str("file", art.Name).
			Int("pages", art.Pages).
			Int("size", len(art.Data)).
			Dur("took", time.Since(start)).
			Str("result", result).
			Msg("tool run")
	}()

	switch req.Tool {
	case ImagesToPDF:
		return s.imagesToPDF(ctx, req)
	case SplitPDF:
		return s.split(ctx, req)
	case MergePDF:
		return s.merge(ctx, req)
	case PDFToImages:
		return s.render(ctx, req)
	}
	return Artifact{}, Invalid(fmt.Errorf("unknown tool %q", req.Tool))
}

// PageCount returns the page count of an uploaded PDF.
func (s *Service) PageCount(in Input) (int, error) {
	if _, err := s.detector.Require(in.Name, in.Data, filetype.KindPDF); err != nil {
		return 0, Invalid(err)
	}
	return s.pageCount(in)
}

func (s *Service) pageCount(in Input) (int, error) {
	n, err := s.ops.PageCount(in.Data)
	if err != nil {
		return 0, Invalid(fmt.Errorf("%s: cannot read PDF: %w", in.Name, err))
	}
	if n < 1 {
		return 0, Invalid(fmt.Errorf("%s: %w", in.Name, pdfops.ErrNoPages))
	}
	return n, nil
}

func (s *Service) singlePDF(req Request) (Input, int, error) {
	if len(req.Inputs) != 1 {
		return Input{}, 0, Invalid(fmt.Errorf("expected exactly one PDF, got %d files", len(req.Inputs)))
	}
	in := req.Inputs[0]
	n, err := s.PageCount(in)
	return in, n, err
}

func (s *Service) imagesToPDF(ctx context.Context, req Request) (Artifact, error) {
	if len(req.Inputs) == 0 {
		return Artifact{}, imagepdf.ErrNoImages
	}
	images := make([]imagepdf.Image, len(req.Inputs))
	for i, in := range req.Inputs {
		if _, err := s.detector.Require(in.Name, in.Data, filetype.KindImage); err != nil {
			return Artifact{}, Invalid(err)
		}
		images[i] = imagepdf.Image{Name: in.Name, Data: in.Data}
	}

	opts := req.Images
	// the pixel cap is server policy and never travels with a request
	opts.MaxPixels = s.defaults.Images.MaxPixels
	res, err := imagepdf.Build(ctx, images, opts)
	if err != nil {
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		return Artifact{}, Invalid(err)
	}
	return Artifact{
		Name:        fmt.Sprintf("images-%d.pdf", s.now().UnixMilli()),
		ContentType: ContentTypePDF,
		Data:        res.Data,
		Pages:       len(res.Pages),
	}, nil
}

func (s *Service) split(ctx context.Context, req Request) (Artifact, error) {
	in, total, err := s.singlePDF(req)
	if err != nil {
		return Artifact{}, err
	}
	base := BaseName(in.Name)

	var (
		groups [][]int
		name   func(i int) string
	)
	switch req.Split.Mode {
	case SplitEach, "":
		groups = pagerange.Each(total)
		name = func(i int) string { return pagerange.PageName(base, groups[i][0]+1, "pdf") }
	case SplitRanges:
		groups, err = pagerange.Parse(req.Split.Ranges, total)
		if err != nil {
			return Artifact{}, err
		}
		name = func(i int) string { return pagerange.PartName(base, i) }
	default:
		return Artifact{}, Invalid(fmt.Errorf("unknown split mode %q", req.Split.Mode))
	}

	docs, err := s.ops.Assemble(ctx, in.Data, groups)
	if err != nil {
		return Artifact{}, err
	}

	var zb archive.Builder
	zb.Modified = s.now()
	pages := 0
	for i, doc := range docs {
		if err := zb.Add(name(i), doc); err != nil {
			return Artifact{}, err
		}
		pages += len(groups[i])
	}
	data, err := zb.Bytes()
	if err != nil {
		return Artifact{}, err
	}
	log.Debug().Str("file", in.Name).Int("groups", len(groups)).Int("pages", pages).Msg("split pdf")
	return Artifact{
		Name:        base + "-split.zip",
		ContentType: ContentTypeZIP,
		Data:        data,
		Pages:       pages,
	}, nil
}

func (s *Service) merge(ctx context.Context, req Request) (Artifact, error) {
	if len(req.Inputs) == 0 {
		return Artifact{}, pdfops.ErrNoDocuments
	}
	docs := make([][]byte, len(req.Inputs))
	pages := 0
	for i, in := range req.Inputs {
		n, err := s.PageCount(in)
		if err != nil {
			return Artifact{}, err
		}
		pages += n
		docs[i] = in.Data
	}

	out, err := s.ops.Merge(ctx, docs)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Name:        fmt.Sprintf("merged-%d.pdf", s.now().UnixMilli()),
		ContentType: ContentTypePDF,
		Data:        out,
		Pages:       pages,
	}, nil
}

func (s *Service) render(ctx context.Context, req Request) (Artifact, error) {
	in, total, err := s.singlePDF(req)
	if err != nil {
		return Artifact{}, err
	}
	format, err := imagerender.ParseFormat(string(req.Render.Format))
	if err != nil {
		return Artifact{}, err
	}

	var sel []int
	if req.Render.Pages != "" {
		groups, err := pagerange.Parse(req.Render.Pages, total)
		if err != nil {
			return Artifact{}, err
		}
		sel = flatten(groups)
	}

	pages, err := imagerender.Render(ctx, in.Data, imagerender.Options{
		Scale:    req.Render.Scale,
		Format:   format,
		Quality:  req.Render.Quality,
		Color:    req.Render.Color,
		Pages:    sel,
		MaxPages: s.defaults.MaxRenderPages,
	})
	if err != nil {
		return Artifact{}, err
	}

	base := BaseName(in.Name)
	ext := string(format)
	if len(pages) == 1 {
		return Artifact{
			Name:        fmt.Sprintf("%s-p%d.%s", base, pages[0].Index+1, ext),
			ContentType: format.ContentType(),
			Data:        pages[0].Data,
			Pages:       1,
		}, nil
	}

	var zb archive.Builder
	zb.Modified = s.now()
	for _, p := range pages {
		if err := zb.Add(pagerange.PageName(base, p.Index+1, ext), p.Data); err != nil {
			return Artifact{}, err
		}
	}
	data, err := zb.Bytes()
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Name:        fmt.Sprintf("%s-%s.zip", base, ext),
		ContentType: ContentTypeZIP,
		Data:        data,
		Pages:       len(pages),
	}, nil
}

// flatten concatenates groups, keeping the first occurrence of each page.
func flatten(groups [][]int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, g := range groups {
		for _, p := range g {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
