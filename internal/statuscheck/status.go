package statuscheck

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/local/minitools/internal/imagepdf"
	"github.com/local/minitools/internal/imagerender"
)

// Pinger models the minimal capability we need from Redis and storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the subsystems the tools depend on.
type Checker struct {
	redis    Pinger
	storage  Pinger
	backend  string
	selfTest func(ctx context.Context) error

	once     sync.Once
	renderer Status
}

// Options configures the Checker. Nil pingers report the subsystem as disabled.
type Options struct {
	Redis   Pinger
	Storage Pinger
	Backend string
	// SelfTest replaces the render self-test.
	SelfTest func(ctx context.Context) error
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	OK       bool   `json:"ok"`
	Redis    Status `json:"redis"`
	Storage  Status `json:"storage"`
	Renderer Status `json:"renderer"`
}

func New(opts Options) *Checker {
	selfTest := opts.SelfTest
	if selfTest == nil {
		selfTest = renderSelfTest
	}
	return &Checker{redis: opts.Redis, storage: opts.Storage, backend: opts.Backend, selfTest: selfTest}
}

// Summary returns the current status snapshot. Disabled subsystems do not
// count against OK.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis:    c.checkRedis(ctx),
		Storage:  c.checkStorage(ctx),
		Renderer: c.checkRenderer(ctx),
	}
	s.OK = s.Renderer.OK &&
		(s.Redis.OK || c.redis == nil) &&
		(s.Storage.OK || c.storage == nil)
	return s
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "Disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkStorage(ctx context.Context) Status {
	if c.storage == nil {
		if c.backend != "" {
			return Status{OK: true, Message: c.backend}
		}
		return Status{OK: false, Message: "Disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.storage.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	msg := "Connected"
	if c.backend != "" {
		msg = c.backend + ": connected"
	}
	return Status{OK: true, Message: msg}
}

// checkRenderer runs the render self-test once; the linked library does not
// change while the process lives.
func (c *Checker) checkRenderer(ctx context.Context) Status {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.selfTest(ctx); err != nil {
			c.renderer = Status{OK: false, Message: trimError(err)}
			return
		}
		c.renderer = Status{OK: true, Message: "Available"}
	})
	return c.renderer
}

// renderSelfTest builds a one-page PDF and renders it back.
func renderSelfTest(ctx context.Context) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		return err
	}
	res, err := imagepdf.Build(ctx, []imagepdf.Image{{Name: "selftest.png", Data: buf.Bytes()}}, imagepdf.DefaultOptions())
	if err != nil {
		return err
	}
	pages, err := imagerender.Render(ctx, res.Data, imagerender.Options{Scale: 0.1, Format: imagerender.FormatPNG})
	if err != nil {
		return err
	}
	if len(pages) != 1 {
		return errors.New("render self-test: unexpected page count")
	}
	return nil
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
