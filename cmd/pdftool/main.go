// pdftool runs the document tools from the command line.
//
// Usage:
//
//	pdftool img2pdf [options] -o out.pdf <image>...
//	pdftool split [options] -o out.zip <file.pdf>
//	pdftool merge -o out.pdf <file.pdf>...
//	pdftool render [options] -o out.zip <file.pdf>
//	pdftool count <file.pdf>...
//	pdftool password [options]
//	pdftool wordcount [file]
//
// Inputs may be local paths, http(s) URLs or s3://bucket/key references.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/local/minitools/internal/imagerender"
	"github.com/local/minitools/internal/layout"
	"github.com/local/minitools/internal/password"
	"github.com/local/minitools/internal/pdfops"
	"github.com/local/minitools/internal/textstats"
	"github.com/local/minitools/internal/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `pdftool - PDF and image utilities

Usage:
  pdftool img2pdf [options] -o out.pdf <image>...
  pdftool split [options] -o out.zip <file.pdf>
  pdftool merge -o out.pdf <file.pdf>...
  pdftool render [options] -o out.zip <file.pdf>
  pdftool count <file.pdf>...
  pdftool password [options]
  pdftool wordcount [file]

Commands:
  img2pdf     Combine JPG/PNG/WebP images into one PDF, one image per page
  split       Split a PDF into one file per page or per range group
  merge       Concatenate PDFs in argument order
  render      Render PDF pages to JPG or PNG images
  count       Print the page count of each PDF
  password    Generate a random password
  wordcount   Count words and characters of a file or stdin

Run "pdftool <command> -h" for command options.
`)
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(stdout)
		return errUsage
	}
	svc := tools.NewService(tools.DefaultDefaults())

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "img2pdf":
		return runImages(ctx, svc, rest)
	case "split":
		return runSplit(ctx, svc, rest)
	case "merge":
		return runMerge(ctx, svc, rest)
	case "render":
		return runRender(ctx, svc, rest)
	case "count":
		return runCount(ctx, svc, rest, stdout)
	case "password":
		return runPassword(rest, stdout)
	case "wordcount":
		return runWordCount(ctx, rest, stdin, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runImages(ctx context.Context, svc *tools.Service, args []string) error {
	fs := flag.NewFlagSet("img2pdf", flag.ContinueOnError)
	out := fs.String("o", "", "output path (default: artifact name)")
	pageSize := fs.String("page-size", "a4", "page size: a4, letter or auto")
	fit := fs.String("fit", "contain", "fit mode: contain or cover")
	margin := fs.Float64("margin", 12, "page margin in points")
	maxSide := fs.Int("max-side", layout.DefaultMaxSide, "downscale images to this longest side")
	noDownscale := fs.Bool("no-downscale", false, "keep the original image resolution")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := svc.NewRequest(tools.ImagesToPDF)
	ps, err := layout.ParsePageSize(*pageSize)
	if err != nil {
		return err
	}
	fm, err := layout.ParseFitMode(*fit)
	if err != nil {
		return err
	}
	req.Images.PageSize = ps
	req.Images.Fit = fm
	req.Images.Margin = *margin
	req.Images.MaxSide = *maxSide
	req.Images.Downscale = !*noDownscale
	return runTool(ctx, svc, req, fs.Args(), *out)
}

func runSplit(ctx context.Context, svc *tools.Service, args []string) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	out := fs.String("o", "", "output path (default: artifact name)")
	ranges := fs.String("r", "", `page ranges, e.g. "1-3; 4,6" (default: one file per page)`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := svc.NewRequest(tools.SplitPDF)
	if *ranges != "" {
		req.Split = tools.SplitOptions{Mode: tools.SplitRanges, Ranges: *ranges}
	}
	return runTool(ctx, svc, req, fs.Args(), *out)
}

func runMerge(ctx context.Context, svc *tools.Service, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	out := fs.String("o", "", "output path (default: artifact name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runTool(ctx, svc, svc.NewRequest(tools.MergePDF), fs.Args(), *out)
}

func runRender(ctx context.Context, svc *tools.Service, args []string) error {
	def := svc.Defaults()
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	out := fs.String("o", "", "output path (default: artifact name)")
	scale := fs.Float64("scale", def.RenderScale, "render scale, 1.0 = 72 dpi")
	quality := fs.Float64("q", def.JPEGQuality, "JPEG quality between 0 and 1")
	format := fs.String("f", "jpg", "image format: jpg or png")
	gray := fs.Bool("gray", false, "render in grayscale")
	pages := fs.String("p", "", `pages to render, e.g. "1-3,7" (default: all)`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := imagerender.ParseFormat(*format)
	if err != nil {
		return err
	}
	req := svc.NewRequest(tools.PDFToImages)
	req.Render.Scale = *scale
	req.Render.Quality = *quality
	req.Render.Format = f
	req.Render.Pages = *pages
	if *gray {
		req.Render.Color = imagerender.ColorGray
	}
	return runTool(ctx, svc, req, fs.Args(), *out)
}

// runTool loads the inputs, runs req and writes the artifact to out, or to
// the artifact's own name when out is empty.
func runTool(ctx context.Context, svc *tools.Service, req tools.Request, refs []string, out string) error {
	if len(refs) == 0 {
		return errors.New("no input files specified")
	}
	inputs, err := loadInputs(ctx, refs)
	if err != nil {
		return err
	}
	req.Inputs = inputs
	art, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	if out == "" {
		out = art.Name
	}
	if err := os.WriteFile(out, art.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, %d pages)\n", out, len(art.Data), art.Pages)
	return nil
}

func loadInputs(ctx context.Context, refs []string) ([]tools.Input, error) {
	inputs := make([]tools.Input, 0, len(refs))
	for _, ref := range refs {
		data, err := pdfops.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ref, err)
		}
		inputs = append(inputs, tools.Input{Name: filepath.Base(ref), Data: data})
	}
	return inputs, nil
}

func runCount(ctx context.Context, svc *tools.Service, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("no input files specified")
	}
	inputs, err := loadInputs(ctx, args)
	if err != nil {
		return err
	}
	for i, in := range inputs {
		n, err := svc.PageCount(in)
		if err != nil {
			return fmt.Errorf("%s: %w", args[i], err)
		}
		fmt.Fprintf(stdout, "%s\t%d\n", args[i], n)
	}
	return nil
}

func runPassword(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("password", flag.ContinueOnError)
	length := fs.Int("n", password.DefaultLength, "password length")
	noLower := fs.Bool("no-lower", false, "exclude lowercase letters")
	noUpper := fs.Bool("no-upper", false, "exclude uppercase letters")
	noDigits := fs.Bool("no-digits", false, "exclude digits")
	noSymbols := fs.Bool("no-symbols", false, "exclude symbols")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := password.Generate(password.Options{
		Length:  password.ClampLength(*length),
		Lower:   !*noLower,
		Upper:   !*noUpper,
		Digits:  !*noDigits,
		Symbols: !*noSymbols,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, pw)
	return nil
}

func runWordCount(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 {
		data, err = pdfops.Fetch(ctx, args[0])
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(textstats.Count(string(data)))
}
