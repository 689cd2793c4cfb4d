package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/queue"
	"github.com/local/minitools/internal/store"
	"github.com/local/minitools/internal/tools"
)

type submitResp struct {
	Status  string         `json:"status"`
	JobID   string         `json:"job_id"`
	Message string         `json:"message"`
	Links   map[string]any `json:"links,omitempty"`
}

// parseUpload limits the body and parses the multipart form.
func (o *Orchestrator) parseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, o.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return tools.Invalid(fmt.Errorf("invalid multipart form: %w", err))
	}
	return nil
}

// handleTool runs one tool. Synchronous requests stream the artifact back;
// async=1 stores the inputs and queues a job.
func (o *Orchestrator) handleTool(w http.ResponseWriter, r *http.Request, t tools.Tool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := o.parseUpload(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := o.deps.Tools.NewRequest(t)
	if err := applyForm(&req, r.MultipartForm.Value); err != nil {
		writeError(w, r, err)
		return
	}
	inputs, err := o.readInputs(r.Context(), r.MultipartForm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if parseBool(r.FormValue("async")) {
		o.submit(w, r, req, inputs)
		return
	}

	if t == tools.PDFToImages && o.deps.Limiter != nil {
		release, ok := o.deps.Limiter.Acquire("render")
		if !ok {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResp{Error: "render capacity exhausted, retry shortly"})
			return
		}
		defer release()
	}

	ctx, cancel := context.WithTimeout(r.Context(), o.opts.SyncTimeout)
	defer cancel()
	req.Inputs = inputs
	art, err := o.deps.Tools.Run(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArtifact(w, art.Name, art.ContentType, art.Pages, art.Data)
}

func writeArtifact(w http.ResponseWriter, name, contentType string, pages int, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if pages > 0 {
		w.Header().Set("X-Page-Count", strconv.Itoa(pages))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// submit stores inputs, records a queued status and enqueues the job.
func (o *Orchestrator) submit(w http.ResponseWriter, r *http.Request, req tools.Request, inputs []tools.Input) {
	if !o.asyncEnabled() {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "async jobs are not enabled"})
		return
	}
	if len(inputs) == 0 {
		writeError(w, r, tools.Invalid(fmt.Errorf("no input files")))
		return
	}
	ctx := r.Context()
	jobID := o.newID()

	refs := make([]queue.InputRef, 0, len(inputs))
	for i, in := range inputs {
		key := store.InputKey(jobID, i)
		if err := o.deps.Artifacts.Put(ctx, key, in.Data); err != nil {
			o.dropInputs(jobID, refs)
			writeError(w, r, fmt.Errorf("store input: %w", err))
			return
		}
		refs = append(refs, queue.InputRef{Name: in.Name, Key: key, Size: len(in.Data)})
	}

	now := o.now()
	_ = o.deps.Status.Set(ctx, jobID, store.Status{
		Status:  store.StateQueued,
		Message: "queued",
		Start:   &now,
		Metadata: map[string]any{
			"tool":    string(req.Tool),
			"inputs":  len(refs),
			"attempt": 1,
		},
	})

	job := queue.Job{ID: jobID, Attempt: 1, Request: req, Inputs: refs, CreatedAt: now}
	payload, err := job.Encode()
	if err == nil {
		err = o.deps.Queue.Enqueue(ctx, payload)
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
		o.dropInputs(jobID, refs)
		end := o.now()
		_ = o.deps.Status.Set(context.WithoutCancel(ctx), jobID, store.Status{Status: store.StateFailed, Message: "queue unavailable", Start: &now, End: &end})
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "queue unavailable"})
		return
	}

	log.Info().Str("job_id", jobID).Str("tool", string(req.Tool)).Int("inputs", len(refs)).Msg("job created")
	writeJSON(w, http.StatusAccepted, submitResp{
		Status:  store.StateQueued,
		JobID:   jobID,
		Message: "Job created successfully",
		Links: map[string]any{
			"status":   "/api/v1/jobs/" + jobID,
			"download": "/api/v1/jobs/" + jobID + "/download",
			"cancel":   "/api/v1/jobs/" + jobID + "/cancel",
		},
	})
}

func (o *Orchestrator) dropInputs(jobID string, refs []queue.InputRef) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, ref := range refs {
		if err := o.deps.Artifacts.Delete(ctx, ref.Key); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Str("key", ref.Key).Msg("input cleanup failed")
		}
	}
}
