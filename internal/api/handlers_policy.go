package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/org/mdmagent/internal/policystore"
)

// PolicyGetHandler handles GET /v1/policy
func (s *Server) PolicyGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"policy":    s.deps.Policies.Current(),
		"work_time": s.deps.Engine.IsWorkTime(),
	})
}

// PolicyRefreshHandler handles POST /v1/policy/refresh. The body may carry
// {"payload": "..."}; without it the device configuration is reread.
func (s *Server) PolicyRefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload *string `json:"payload"`
	}
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := ""
	switch {
	case req.Payload != nil:
		payload = *req.Payload
	case s.deps.Payload != nil:
		payload = s.deps.Payload.LocalPayload()
	}

	res := s.deps.Policies.UpdatePolicy(r.Context(), payload)
	body := map[string]any{
		"status": res.Status.String(),
		"source": res.Source,
		"policy": res.Policy,
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	code := http.StatusOK
	if res.Status == policystore.StatusUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// WorkTimeHandler handles GET /v1/worktime. Each call advances the UI edge
// signal, so a single poller should own it.
func (s *Server) WorkTimeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"work_time":  s.deps.Engine.IsWorkTime(),
		"refresh_ui": s.deps.Engine.ShouldRefreshUI(),
	})
}

// AppAccessHandler handles GET /v1/apps/{package}/access
func (s *Server) AppAccessHandler(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package")
	writeJSON(w, http.StatusOK, s.deps.Engine.Decide(pkg))
}
