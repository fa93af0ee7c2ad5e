package api

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler handles GET /v1/sys/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	code := http.StatusOK
	storage := "ok"
	if err := s.deps.Store.Ping(ctx); err != nil {
		code = http.StatusServiceUnavailable
		storage = err.Error()
	}
	writeJSON(w, code, map[string]any{
		"storage":       storage,
		"policy_loaded": s.deps.Policies.Current() != nil,
		"version":       "1.0.0",
	})
}
