package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/blktag/internal/blkid"
	"github.com/nerrad567/blktag/internal/store"
)

// healthCheckTimeout bounds each backing-service health check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth reports "healthy" when every configured check passes and
// "degraded" with HTTP 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: s.version}
	status := http.StatusOK

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleStats returns cache and resolver counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// handleProbe runs a full probe and returns the resulting stats.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Probe(r.Context()); err != nil {
		if errors.Is(err, blkid.ErrResourceExhausted) {
			writeError(w, http.StatusInsufficientStorage, ErrCodeLimitExceeded, err.Error())
			return
		}
		s.logger.Error("manual probe failed",
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "probe failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// handleListRuns pages through the probe history, newest first.
// Query parameters: status (ok|failed), limit, offset.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeNotFound(w, "probe history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{Status: q.Get("status")}
	switch filter.Status {
	case "", store.RunOK, store.RunFailed:
	default:
		writeBadRequest(w, "status must be ok or failed")
		return
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	list, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing probe runs failed", "error", err)
		writeInternalError(w, "failed to list probe runs")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
