// Package pdfops is the PDF document model used by the tools: load from
// bytes, count pages, copy selected pages into a new document and merge.
package pdfops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoPages is returned for documents without pages or empty selections.
	ErrNoPages = errors.New("pdfops: no pages")
	// ErrNoDocuments is returned by Merge for an empty input list.
	ErrNoDocuments = errors.New("pdfops: no documents")
)

// Ops wraps pdfcpu. It holds no document state and is safe for concurrent use.
type Ops struct {
	relaxed bool
}

// New returns Ops using pdfcpu's relaxed validation, which accepts the
// slightly broken files real users upload.
func New() *Ops { return &Ops{relaxed: true} }

// config returns a fresh configuration; pdfcpu records the running command
// on it, so it must not be shared between calls.
func (o *Ops) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if o.relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

// PageCount returns the number of pages of the PDF in data.
func (o *Ops) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), o.config())
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Validate checks data is a readable PDF.
func (o *Ops) Validate(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), o.config()); err != nil {
		return fmt.Errorf("pdf validation failed: %w", err)
	}
	return nil
}

// Collect creates a new document holding the 0-based pages idx of data, in
// the listed order.
func (o *Ops) Collect(data []byte, idx []int) ([]byte, error) {
	if len(idx) == 0 {
		return nil, ErrNoPages
	}
	sel := make([]string, len(idx))
	for i, p := range idx {
		if p < 0 {
			return nil, fmt.Errorf("pdfops: negative page index %d", p)
		}
		sel[i] = strconv.Itoa(p + 1)
	}
	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(data), &out, sel, o.config()); err != nil {
		return nil, fmt.Errorf("pdf collect pages %v failed: %w", sel, err)
	}
	return out.Bytes(), nil
}

// Assemble builds one document per group. Either every document is produced
// or an error is returned.
func (o *Ops) Assemble(ctx context.Context, data []byte, groups [][]int) ([][]byte, error) {
	if len(groups) == 0 {
		return nil, ErrNoPages
	}
	out := make([][]byte, 0, len(groups))
	for g, idx := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := o.Collect(data, idx)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", g+1, err)
		}
		out = append(out, doc)
	}
	log.Debug().Int("groups", len(groups)).Msg("assembled documents")
	return out, nil
}

// Merge concatenates docs in order.
func (o *Ops) Merge(ctx context.Context, docs [][]byte) ([]byte, error) {
	switch len(docs) {
	case 0:
		return nil, ErrNoDocuments
	case 1:
		if err := o.Validate(docs[0]); err != nil {
			return nil, err
		}
		return docs[0], nil
	}
	rsc := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rsc[i] = bytes.NewReader(d)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, o.config()); err != nil {
		return nil, fmt.Errorf("pdf merge failed: %w", err)
	}
	return out.Bytes(), nil
}
