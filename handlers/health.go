package handlers

import (
	"context"
	"net/http"
	"time"

	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/internal/version"
)

type HealthResponse struct {
	Status    string           `json:"status"`
	Version   version.Info     `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Stats     map[string]int64 `json:"stats"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   version.Get(),
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Stats: map[string]int64{
			"signups":           s.stats.Signups.Load(),
			"finalized":         s.stats.Finalized.Load(),
			"checkout_sessions": s.stats.CheckoutSessions.Load(),
			"webhooks":          s.stats.Webhooks.Load(),
			"client_errors":     s.stats.ClientErrors.Load(),
			"server_errors":     s.stats.ServerErrors.Load(),
		},
	})
}

// Ready reports whether the record store answers.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.Storage.Ping(ctx); err != nil {
		logger.Warn("Readiness check failed", logger.Fields{"error": err.Error()})
		writeErrorResponse(w, http.StatusServiceUnavailable, "Store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
