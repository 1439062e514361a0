package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/danshapiro/gamecrew/internal/handoff"
	"github.com/danshapiro/gamecrew/internal/roles"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Model:       s.config.Model,
		Provider:    s.config.Provider,
		Credentials: s.credErr == nil,
	})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RolesResponse{Roles: roles.Names(), Terminal: roles.FinishName})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	WriteSSE(w, r, s.events)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var req ChatRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body: trailing data")
		return
	}

	// Credentials are checked before the role so a misconfigured deployment
	// is reported as such for every request.
	if s.credErr != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   s.credErr.Error(),
			Details: "set GOOGLE_API_KEY or GEMINI_API_KEY",
		})
		return
	}

	reqID := RequestIDFromContext(r.Context())
	res, err := s.turns.Handle(r.Context(), handoff.TurnRequest{
		Role:      req.Agent,
		Message:   req.UserInput,
		History:   req.History,
		RequestID: reqID,
	})
	if err != nil {
		status := handoff.ErrorStatus(err)
		log.Warn().Err(err).Str("request_id", reqID).Str("agent", req.Agent).Int("status", status).Msg("turn failed")
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
