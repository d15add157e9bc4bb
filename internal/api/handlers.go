package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/psv-academy/internal/academy"
	"github.com/terra-clan/psv-academy/internal/grading"
	"github.com/terra-clan/psv-academy/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps academy errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, academy.ErrScenarioNotFound):
		respondError(w, http.StatusNotFound, "scenario_not_found", "grading unavailable: scenario not found")
	case errors.Is(err, academy.ErrProfileNotFound):
		respondError(w, http.StatusNotFound, "not_found", "profile not found")
	case errors.Is(err, academy.ErrAttemptNotFound):
		respondError(w, http.StatusNotFound, "not_found", "attempt not found")
	case errors.Is(err, academy.ErrDraftNotFound):
		respondError(w, http.StatusNotFound, "not_found", "draft not found")
	case errors.Is(err, academy.ErrInvalidProfileID):
		respondError(w, http.StatusBadRequest, "validation_error", "profile id is required")
	case errors.Is(err, academy.ErrHardModeLocked):
		respondError(w, http.StatusForbidden, "hard_mode_locked", "hard mode is not unlocked for this profile")
	case errors.Is(err, academy.ErrNotHardEligible):
		respondError(w, http.StatusUnprocessableEntity, "not_hard_eligible", "scenario does not offer hard mode")
	case errors.Is(err, academy.ErrDuplicateSubmission):
		respondError(w, http.StatusConflict, "duplicate_submission", err.Error())
	case errors.Is(err, grading.ErrAnswerKeyMismatch):
		slog.Error("answer key mismatch", "error", err)
		respondError(w, http.StatusInternalServerError, "grading_unavailable", "grading unavailable: answer key mismatch")
	default:
		slog.Error("failed to "+action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// profileID resolves the target profile: the token subject on learner routes, the path otherwise
func profileID(r *http.Request) string {
	if id := LearnerFromContext(r.Context()); id != "" {
		return id
	}
	return chi.URLParam(r, "id")
}

func queryLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			return limit
		}
	}
	return def
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if err := s.academy.Ping(r.Context()); err != nil {
		checks["storage"] = err.Error()
		ready = false
	} else {
		checks["storage"] = "ok"
	}

	if s.registry != nil {
		for name, err := range s.registry.HealthCheckAll(r.Context()) {
			if err != nil {
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}
	}

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Grading handlers

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req models.GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ScenarioID) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "scenarioId is required")
		return
	}

	result, err := s.academy.Grade(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "grade attempt")
		return
	}

	if r.URL.Query().Get("view") == "legacy" {
		respondJSON(w, http.StatusOK, result.LegacyView())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ScenarioID) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "scenarioId is required")
		return
	}

	resp, err := s.academy.Submit(r.Context(), profileID(r), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		respondServiceError(w, err, "submit attempt")
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// Profile handlers

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.academy.GetProfile(r.Context(), profileID(r))
	if err != nil {
		respondServiceError(w, err, "get profile")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleResetProfile(w http.ResponseWriter, r *http.Request) {
	id := profileID(r)
	if err := s.academy.ResetProfile(r.Context(), id); err != nil {
		respondServiceError(w, err, "reset profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "profile reset",
	})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	filters := models.AttemptFilters{
		ProfileID:  profileID(r),
		ScenarioID: r.URL.Query().Get("scenarioId"),
		Limit:      queryLimit(r, 50),
	}

	attempts, err := s.academy.ListAttempts(r.Context(), filters)
	if err != nil {
		respondServiceError(w, err, "list attempts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": attempts,
		"total":    len(attempts),
	})
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.academy.GetAttempt(r.Context(), chi.URLParam(r, "attemptId"))
	if err != nil {
		respondServiceError(w, err, "get attempt")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.academy.Leaderboard(r.Context(), queryLimit(r, 10))
	if err != nil {
		respondServiceError(w, err, "load leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// Draft handlers

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var ds models.Datasheet
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	d, err := s.academy.SaveDraft(r.Context(), profileID(r), chi.URLParam(r, "scenarioId"), ds)
	if err != nil {
		respondServiceError(w, err, "save draft")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.academy.GetDraft(r.Context(), profileID(r), chi.URLParam(r, "scenarioId"))
	if err != nil {
		respondServiceError(w, err, "get draft")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.academy.DeleteDraft(r.Context(), profileID(r), chi.URLParam(r, "scenarioId")); err != nil {
		respondServiceError(w, err, "delete draft")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "draft deleted",
	})
}
