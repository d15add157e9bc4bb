package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Catalog handlers: tracks and scenarios. Answer keys are never served.

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.academy.Catalog().ListTracks()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
		"total":  len(tracks),
	})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	catalog := s.academy.Catalog()
	trackID := chi.URLParam(r, "trackId")

	track := catalog.GetTrack(trackID)
	if track == nil {
		respondError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track":     track,
		"scenarios": catalog.ListScenarios(trackID),
	})
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	catalog := s.academy.Catalog()
	trackID := r.URL.Query().Get("track")
	if trackID != "" && catalog.GetTrack(trackID) == nil {
		respondError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}

	scenarios := catalog.ListScenarios(trackID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": scenarios,
		"total":     len(scenarios),
	})
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc := s.academy.Catalog().GetScenario(chi.URLParam(r, "scenarioId"))
	if sc == nil {
		respondError(w, http.StatusNotFound, "not_found", "scenario not found")
		return
	}
	respondJSON(w, http.StatusOK, sc)
}
