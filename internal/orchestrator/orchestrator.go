package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/metrics"
	"github.com/local/minitools/internal/statuscheck"
	"github.com/local/minitools/internal/store"
	"github.com/local/minitools/internal/tools"
)

type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
	Update(ctx context.Context, jobID string, fn func(st *store.Status) bool) error
}

// ToolRunner is the tool service as seen by the API.
type ToolRunner interface {
	NewRequest(t tools.Tool) tools.Request
	Run(ctx context.Context, req tools.Request) (tools.Artifact, error)
	PageCount(in tools.Input) (int, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, client string) (bool, time.Duration, error)
	Acquire(name string) (func(), bool)
}

type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies wires the API. Queue, Status and Artifacts are only needed for
// async jobs; Limiter and Health are optional.
type Dependencies struct {
	Tools     ToolRunner
	Queue     Queue
	Status    StatusStore
	Artifacts store.ArtifactStore
	Limiter   RateLimiter
	Health    HealthChecker
}

type Options struct {
	MaxUploadBytes int64
	// SyncTimeout bounds a synchronous tool run.
	SyncTimeout time.Duration
	// RemoteInputs allows "url" form fields (http, https, s3) as inputs.
	RemoteInputs bool
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string
}

type Orchestrator struct {
	deps    Dependencies
	opts    Options
	proxies []netip.Prefix
	newID   func() string
	now     func() time.Time
}

func New(deps Dependencies, opts Options) *Orchestrator {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		proxies: parseTrustedProxies(opts.TrustedProxies),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

func (o *Orchestrator) asyncEnabled() bool {
	return o.deps.Queue != nil && o.deps.Status != nil && o.deps.Artifacts != nil
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", o.handleStatus)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/v1/", o.handleAPI)
}

func (o *Orchestrator) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/"), "/")
	switch {
	case path == "page-count":
		o.handlePageCount(w, r)
	case path == "password":
		o.handlePassword(w, r)
	case path == "wordcount":
		o.handleWordCount(w, r)
	case strings.HasPrefix(path, "jobs/"):
		o.handleJobs(w, r, strings.TrimPrefix(path, "jobs/"))
	default:
		t, err := tools.ParseTool(path)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResp{Error: "unknown endpoint"})
			return
		}
		o.handleTool(w, r, t)
	}
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	s := o.deps.Health.Summary(r.Context())
	code := http.StatusOK
	if !s.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s)
}

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps user errors to 400 with their message and hides the rest.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{Error: "upload too large"})
	case tools.IsUserError(err):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResp{Error: "processing timed out"})
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}
