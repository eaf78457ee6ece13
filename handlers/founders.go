package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"nxtrix.com/founders/founders"
	"nxtrix.com/founders/internal/logger"
)

const maxBodyBytes = int64(65536)

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req founders.SignupRequest
	if !decodeBody(w, r, &req) {
		s.stats.ClientErrors.Inc()
		return
	}

	result, err := s.Founders.Signup(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.stats.Signups.Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) Finalize(w http.ResponseWriter, r *http.Request) {
	var req founders.FinalizeRequest
	if !decodeBody(w, r, &req) {
		s.stats.ClientErrors.Inc()
		return
	}

	result, err := s.Founders.Finalize(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.stats.Finalized.Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req founders.CheckoutRequest
	if !decodeBody(w, r, &req) {
		s.stats.ClientErrors.Inc()
		return
	}

	result, err := s.Founders.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.stats.CheckoutSessions.Inc()
	writeJSON(w, http.StatusOK, result)
}

// decodeBody reads a JSON object into v. On failure it writes the 400 and
// returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorResponse(w, http.StatusBadRequest, "Request body too large")
			return false
		}
		writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if len(body) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "Empty body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// writeServiceError maps founders errors to a status. Server errors get a
// generic message so processor and store details never reach the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if founders.IsClientError(err) {
		s.stats.ClientErrors.Inc()
		logger.Info("Request rejected", logger.Fields{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.stats.ServerErrors.Inc()
	logger.Error("Request failed", logger.Fields{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	captureException(r, err)
	writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", logger.Fields{"error": err.Error()})
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
