package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/metrics"
)

// watchCancel polls the cancel set while a job runs and calls cancel once the
// job shows up there. The returned flag reports whether that happened.
func (w *Worker) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc) *atomic.Bool {
	var hit atomic.Bool
	go func() {
		ticker := time.NewTicker(w.cfg.CancelPoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cancelled, _ := w.deps.Queue.IsCancelled(context.Background(), jobID); cancelled {
					log.Info().Str("job_id", jobID).Msg("job cancelled (detected via Redis) - stopping run")
					hit.Store(true)
					cancel()
					return
				}
			}
		}
	}()
	return &hit
}

// DepthSource reports stream, delayed and dead-letter lengths.
type DepthSource interface {
	Depths(ctx context.Context) (int64, int64, int64, error)
}

// ReportDepths publishes queue depth gauges every interval until ctx is done.
func ReportDepths(ctx context.Context, src DepthSource, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		reportDepthsOnce(ctx, src)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func reportDepthsOnce(ctx context.Context, src DepthSource) {
	stream, delayed, dlq, err := src.Depths(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("queue depth read failed")
		return
	}
	metrics.SetQueueDepth("stream", stream)
	metrics.SetQueueDepth("delayed", delayed)
	metrics.SetQueueDepth("dlq", dlq)
}
