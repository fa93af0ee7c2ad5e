package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/org/mdmagent/pkg/models"
)

// CallLogIngestHandler handles POST /v1/calllog. The platform bridge posts
// call log entries here; duplicates are ignored.
func (s *Server) CallLogIngestHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []models.CallLogRecord `json:"records"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i, rec := range req.Records {
		if err := validateCallRecord(rec); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("records[%d]: %v", i, err))
			return
		}
	}

	n, err := s.deps.Store.InsertCallLogs(r.Context(), req.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	callRecordsIngested.Add(float64(n))
	writeJSON(w, http.StatusOK, map[string]any{"received": len(req.Records), "inserted": n})
}

func validateCallRecord(rec models.CallLogRecord) error {
	switch {
	case rec.PhoneNumber == "":
		return fmt.Errorf("phoneNumber is required")
	case rec.CallTimestamp <= 0:
		return fmt.Errorf("callTimestamp must be positive")
	case rec.Duration < 0:
		return fmt.Errorf("duration must not be negative")
	case rec.CallType < models.CallIncoming || rec.CallType > models.CallAnsweredExternally:
		return fmt.Errorf("unknown callType %d", int(rec.CallType))
	}
	return nil
}

// LocationHandler handles POST /v1/location
func (s *Server) LocationHandler(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decodeJSON(w, r, &loc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	if loc.Ts <= 0 {
		loc.Ts = time.Now().UnixMilli()
	}
	if err := s.deps.Store.SaveLocation(r.Context(), &loc); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
