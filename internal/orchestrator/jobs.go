package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/store"
	"github.com/local/minitools/internal/tools"
)

// handleJobs dispatches /api/v1/jobs/{id}[/download|/cancel].
func (o *Orchestrator) handleJobs(w http.ResponseWriter, r *http.Request, rest string) {
	if o.deps.Status == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "async jobs are not enabled"})
		return
	}
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "missing job id"})
		return
	}
	switch action {
	case "":
		o.handleProgress(w, r, id)
	case "download":
		o.handleDownload(w, r, id)
	case "cancel":
		o.handleCancelJob(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, errorResp{Error: "unknown endpoint"})
	}
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "job not found"})
		return
	}
	resp := map[string]any{
		"success":    st.Status == store.StateSuccess,
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"tool":       st.MetaString("tool"),
		"attempt":    st.MetaInt("attempt"),
	}
	if st.Status == store.StateSuccess {
		resp["artifact"] = map[string]any{
			"name":         st.MetaString("artifact_name"),
			"content_type": st.MetaString("content_type"),
			"size":         st.MetaInt("size"),
			"pages":        st.MetaInt("pages"),
		}
		resp["download_url"] = "/api/v1/jobs/" + id + "/download"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload serves the stored artifact of a finished job.
func (o *Orchestrator) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "job not found"})
		return
	}
	if st.Status != store.StateSuccess {
		writeJSON(w, http.StatusConflict, errorResp{Error: fmt.Sprintf("job is %s", st.Status)})
		return
	}
	key := st.MetaString("artifact_key")
	if key == "" {
		key = store.OutputKey(id)
	}
	data, err := o.deps.Artifacts.Get(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusGone, errorResp{Error: "artifact expired"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := st.MetaString("artifact_name")
	if name == "" {
		name = id
	}
	ct := st.MetaString("content_type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	writeArtifact(w, name, ct, st.MetaInt("pages"), data)
}

type cancelReq struct {
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if o.deps.Queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "async jobs are not enabled"})
		return
	}
	var req cancelReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			writeError(w, r, tools.Invalid(errors.New("invalid json")))
			return
		}
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "job not found"})
		return
	}
	if st.Terminal() {
		writeJSON(w, http.StatusConflict, errorResp{Error: fmt.Sprintf("job already %s", st.Status)})
		return
	}
	// mark cancelled in queue store; workers check it before and while running
	if err := o.deps.Queue.CancelJob(r.Context(), id); err != nil {
		writeError(w, r, fmt.Errorf("cancel job: %w", err))
		return
	}
	now := o.now()
	var finished string
	err = o.deps.Status.Update(r.Context(), id, func(st *store.Status) bool {
		// the worker may have recorded a result since the first read
		if st.Terminal() {
			finished = st.Status
			return false
		}
		st.Status = store.StateCancelled
		st.Progress = 0
		if req.Reason != "" {
			st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
		} else {
			st.Message = "Cancelled"
		}
		st.End = &now
		return true
	})
	if err != nil {
		log.Warn().Err(err).Str("job_id", id).Msg("status write failed")
	}
	if finished != "" {
		writeJSON(w, http.StatusConflict, errorResp{Error: fmt.Sprintf("job already %s", finished)})
		return
	}
	log.Info().Str("job_id", id).Str("reason", req.Reason).Msg("job cancelled")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "status": store.StateCancelled})
}
