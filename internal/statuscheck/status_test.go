package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func TestSummaryAllHealthy(t *testing.T) {
	c := New(Options{Redis: pingFunc(ok), Storage: pingFunc(ok), Backend: "s3", SelfTest: ok})
	s := c.Summary(context.Background())
	assert.True(t, s.OK)
	assert.Equal(t, Status{OK: true, Message: "Connected"}, s.Redis)
	assert.Equal(t, "s3: connected", s.Storage.Message)
	assert.Equal(t, "Available", s.Renderer.Message)
}

func TestSummaryDisabledSubsystems(t *testing.T) {
	c := New(Options{Backend: "local", SelfTest: ok})
	s := c.Summary(context.Background())
	assert.True(t, s.OK)
	assert.Equal(t, "Disabled", s.Redis.Message)
	assert.Equal(t, Status{OK: true, Message: "local"}, s.Storage)
}

func TestSummaryFailures(t *testing.T) {
	calls := 0
	c := New(Options{
		Redis:    pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 200)) }),
		SelfTest: func(context.Context) error { calls++; return errors.New("no mupdf") },
	})
	s := c.Summary(context.Background())
	assert.False(t, s.OK)
	assert.Len(t, s.Redis.Message, 120)
	assert.Equal(t, "no mupdf", s.Renderer.Message)

	c.Summary(context.Background())
	assert.Equal(t, 1, calls)
}

func TestTrimErrorTimeout(t *testing.T) {
	assert.Equal(t, "timeout", trimError(context.DeadlineExceeded))
	assert.Equal(t, "", trimError(nil))
}

func TestRenderSelfTest(t *testing.T) {
	assert.NoError(t, renderSelfTest(context.Background()))
}
