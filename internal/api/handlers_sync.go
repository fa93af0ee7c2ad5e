package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/org/mdmagent/internal/syncworker"
)

// SyncListHandler handles GET /v1/sync
func (s *Server) SyncListHandler(w http.ResponseWriter, r *http.Request) {
	names := s.deps.Jobs.Jobs()
	sort.Strings(names)
	jobs := make([]map[string]any, 0, len(names))
	for _, n := range names {
		jobs = append(jobs, map[string]any{"name": n, "pending": s.deps.Jobs.Pending(n)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// SyncTriggerHandler handles POST /v1/sync/{job}
func (s *Server) SyncTriggerHandler(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	err := s.deps.Jobs.Enqueue(job)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"job": job, "queued": true})
	case errors.Is(err, syncworker.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncworker.ErrAlreadyPending):
		writeJSON(w, http.StatusConflict, map[string]any{"job": job, "queued": false})
	case errors.Is(err, syncworker.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// CallStateHandler handles POST /v1/events/call-state
func (s *Server) CallStateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	state, err := syncworker.ParseCallState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scheduled, err := s.deps.CallState.Observe(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "upload_scheduled": scheduled})
}
