package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/metrics"
	"github.com/local/minitools/internal/queue"
	"github.com/local/minitools/internal/store"
	"github.com/local/minitools/internal/tools"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	AddDLQ(ctx context.Context, payload []byte, reason string) error
}

type StatusStore interface {
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
	Update(ctx context.Context, jobID string, fn func(st *store.Status) bool) error
}

// Runner executes one tool request.
type Runner interface {
	Run(ctx context.Context, req tools.Request) (tools.Artifact, error)
}

type Config struct {
	Concurrency    int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	BackoffFactor  float64
	MaxRetryDelay  time.Duration
	JobTimeout     time.Duration
	DequeueTimeout time.Duration
	CancelPoll     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 10 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 2 * time.Second
	}
	if c.CancelPoll <= 0 {
		c.CancelPoll = time.Second
	}
	return c
}

type Dependencies struct {
	Queue     Queue
	Status    StatusStore
	Artifacts store.ArtifactStore
	Tools     Runner
}

type Worker struct {
	cfg  Config
	deps Dependencies
	name string
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	now  func() time.Time
}

func New(cfg Config, deps Dependencies) *Worker {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	return &Worker{
		cfg:  cfg.withDefaults(),
		deps: deps,
		name: fmt.Sprintf("%s-%d", host, os.Getpid()),
		stop: make(chan struct{}),
		now:  time.Now,
	}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	w.once.Do(func() { close(w.stop) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.name, id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("dispatcher worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("dispatcher worker stopped")
			return
		default:
		}

		msgID, data, err := w.deps.Queue.Dequeue(context.Background(), consumer, w.cfg.DequeueTimeout)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			select {
			case <-w.stop:
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if data == nil {
			continue
		}
		// ack-on-read: retries are re-enqueued explicitly, never redelivered
		if err := w.deps.Queue.Ack(context.Background(), msgID); err != nil {
			log.Warn().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
		w.handle(context.Background(), data)
	}
}

var errCancelled = errors.New("job cancelled")

// handle processes one queue payload and decides retry, DLQ or done.
func (w *Worker) handle(ctx context.Context, payload []byte) {
	job, err := queue.Decode(payload)
	if err != nil {
		log.Error().Err(err).Msg("malformed job payload; moving to DLQ")
		_ = w.deps.Queue.AddDLQ(ctx, payload, (&ValidationError{Message: err.Error()}).Error())
		metrics.IncJob("dlq")
		return
	}

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.ID); cancelled {
		log.Warn().Str("job_id", job.ID).Msg("job cancelled before processing; skipping")
		w.markCancelled(ctx, job)
		return
	}

	err = w.process(ctx, job)
	switch {
	case err == nil:
		metrics.IncJob("success")

	case errors.Is(err, errCancelled):
		w.markCancelled(ctx, job)

	case isFatalError(err):
		log.Warn().Err(err).Str("job_id", job.ID).Str("tool", string(job.Request.Tool)).Msg("job failed (fatal)")
		w.fail(ctx, job, err.Error())
		_ = w.deps.Queue.AddDLQ(ctx, payload, err.Error())
		metrics.IncJob("failed")

	case job.Attempt >= w.cfg.MaxAttempts:
		reason := fmt.Sprintf("max attempts (%d) reached: %v", w.cfg.MaxAttempts, err)
		log.Error().Err(err).Str("job_id", job.ID).Int("attempt", job.Attempt).Msg("job failed; moving to DLQ")
		w.fail(ctx, job, reason)
		_ = w.deps.Queue.AddDLQ(ctx, payload, reason)
		metrics.IncJob("dlq")

	default:
		w.retry(ctx, job, err)
	}
}

func (w *Worker) retry(ctx context.Context, job queue.Job, cause error) {
	delay := w.backoff(job.Attempt)
	job.Attempt++
	b, err := job.Encode()
	if err == nil {
		err = w.deps.Queue.EnqueueDelayed(ctx, b, w.now().Add(delay))
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("retry enqueue failed")
		w.fail(ctx, job, fmt.Sprintf("retry enqueue failed: %v", err))
		metrics.IncJob("failed")
		return
	}
	metrics.IncRetry()

	msg := fmt.Sprintf("retry %d/%d in %s: %v", job.Attempt, w.cfg.MaxAttempts, delay, cause)
	if isTimeoutError(cause) {
		msg = fmt.Sprintf("retry %d/%d in %s: timed out after %s", job.Attempt, w.cfg.MaxAttempts, delay, w.cfg.JobTimeout)
	}
	log.Warn().Err(cause).Str("job_id", job.ID).Int("attempt", job.Attempt).Dur("delay", delay).Msg("job scheduled for retry")
	w.update(ctx, job.ID, func(st *store.Status) {
		st.Status = store.StateQueued
		st.Progress = 0
		st.Message = msg
		st.Metadata["attempt"] = job.Attempt
	})
}

// backoff returns base * factor^(attempt-1), capped.
func (w *Worker) backoff(attempt int) time.Duration {
	d := float64(w.cfg.RetryBaseDelay) * math.Pow(w.cfg.BackoffFactor, float64(attempt-1))
	if d > float64(w.cfg.MaxRetryDelay) {
		return w.cfg.MaxRetryDelay
	}
	return time.Duration(d)
}

func (w *Worker) process(parent context.Context, job queue.Job) error {
	ctx, cancel := context.WithTimeout(parent, w.cfg.JobTimeout)
	defer cancel()
	cancelled := w.watchCancel(ctx, job.ID, cancel)

	start := w.now()
	w.update(ctx, job.ID, func(st *store.Status) {
		st.Status = store.StateProcessing
		st.Progress = 10
		st.Message = "loading inputs"
		st.Metadata["attempt"] = job.Attempt
		if st.Start == nil {
			st.Start = &start
		}
	})

	req := job.Request
	req.Inputs = make([]tools.Input, 0, len(job.Inputs))
	for _, ref := range job.Inputs {
		data, err := w.deps.Artifacts.Get(ctx, ref.Key)
		if err != nil {
			return fmt.Errorf("load input %s: %w", ref.Name, err)
		}
		req.Inputs = append(req.Inputs, tools.Input{Name: ref.Name, Data: data})
	}

	w.update(ctx, job.ID, func(st *store.Status) {
		st.Progress = 30
		st.Message = fmt.Sprintf("running %s", req.Tool)
	})

	art, err := w.deps.Tools.Run(ctx, req)
	if cancelled.Load() {
		return errCancelled
	}
	if err != nil {
		return err
	}

	key := store.OutputKey(job.ID)
	if err := w.deps.Artifacts.Put(ctx, key, art.Data); err != nil {
		if cancelled.Load() {
			return errCancelled
		}
		return fmt.Errorf("store artifact: %w", err)
	}
	// a cancel that landed after the last poll must still win over success
	if c, _ := w.deps.Queue.IsCancelled(context.WithoutCancel(ctx), job.ID); c || cancelled.Load() {
		if err := w.deps.Artifacts.Delete(context.WithoutCancel(ctx), key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("output cleanup failed")
		}
		return errCancelled
	}
	for _, ref := range job.Inputs {
		if err := w.deps.Artifacts.Delete(ctx, ref.Key); err != nil {
			log.Warn().Err(err).Str("key", ref.Key).Msg("input cleanup failed")
		}
	}

	end := w.now()
	w.update(ctx, job.ID, func(st *store.Status) {
		st.Status = store.StateSuccess
		st.Progress = 100
		st.Message = "completed"
		st.End = &end
		st.Metadata["artifact_name"] = art.Name
		st.Metadata["content_type"] = art.ContentType
		st.Metadata["artifact_key"] = key
		st.Metadata["size"] = len(art.Data)
		st.Metadata["pages"] = art.Pages
	})
	log.Info().
		Str("job_id", job.ID).
		Str("tool", string(req.Tool)).
		Str("file", art.Name).
		Int("pages", art.Pages).
		Int("attempt", job.Attempt).
		Dur("took", end.Sub(start)).
		Msg("job completed")
	return nil
}

func (w *Worker) fail(ctx context.Context, job queue.Job, reason string) {
	end := w.now()
	w.update(ctx, job.ID, func(st *store.Status) {
		st.Status = store.StateFailed
		st.Message = reason
		st.End = &end
		st.Metadata["attempt"] = job.Attempt
	})
	w.cleanupInputs(ctx, job)
}

func (w *Worker) markCancelled(ctx context.Context, job queue.Job) {
	end := w.now()
	w.update(ctx, job.ID, func(st *store.Status) {
		if st.Status != store.StateCancelled {
			st.Message = "Cancelled"
		}
		st.Status = store.StateCancelled
		st.Progress = 0
		st.End = &end
	})
	w.cleanupInputs(ctx, job)
	metrics.IncJob("cancelled")
}

func (w *Worker) cleanupInputs(ctx context.Context, job queue.Job) {
	for _, ref := range job.Inputs {
		_ = w.deps.Artifacts.Delete(ctx, ref.Key)
	}
}

// update applies fn to the stored status in one atomic step. A cancelled job
// only accepts further cancelled updates.
func (w *Worker) update(ctx context.Context, jobID string, fn func(st *store.Status)) {
	// status writes outlive a cancelled job context
	ctx = context.WithoutCancel(ctx)
	err := w.deps.Status.Update(ctx, jobID, func(st *store.Status) bool {
		wasCancelled := st.Status == store.StateCancelled
		if st.Metadata == nil {
			st.Metadata = map[string]interface{}{}
		}
		fn(st)
		return !wasCancelled || st.Status == store.StateCancelled
	})
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("status write failed")
	}
}
