package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/history"
	"github.com/mattjoyce/bxt-launcher/internal/lock"
	"github.com/mattjoyce/bxt-launcher/internal/log"
	"github.com/mattjoyce/bxt-launcher/internal/runner"
)

const maxHistoryLimit = 500

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		HistoryEnabled: s.history != nil,
	})
}

// handleListProfiles handles GET /profiles.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		respondJSON(w, http.StatusOK, []ProfileSummary{})
		return
	}
	out := make([]ProfileSummary, 0, len(s.profiles.Profiles))
	for i, p := range s.profiles.Profiles {
		out = append(out, ProfileSummary{
			Index:       i,
			Name:        p.Name,
			Current:     i == s.profiles.CurrentProfile,
			HLExe:       p.HLExe,
			EnableBXT:   p.EnableBXT,
			EnableBXTRS: p.EnableBXTRS,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleLaunch handles POST /launch. The launch runs in the background; the
// caller follows it through GET /launch/{id} or /events.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req LaunchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	l, err := s.launcher.Start(s.launchCtx, req.Profile)
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, config.ErrProfileNotFound):
			status = http.StatusNotFound
		case errors.Is(err, lock.ErrLocked):
			status = http.StatusConflict
		}
		s.logger.Warn("launch rejected", "profile", req.Profile, "error", err)
		s.writeError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, LaunchResponse{
		LaunchID: l.ID,
		Profile:  l.Profile,
		Status:   "accepted",
	})
}

// handleGetLaunch handles GET /launch/{launchID}. Live launches report their
// current state; older ones come from history.
func (s *Server) handleGetLaunch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "launchID")

	l, err := s.launcher.Get(id)
	if err == nil {
		respondJSON(w, http.StatusOK, l.Status())
		return
	}
	if !errors.Is(err, runner.ErrUnknownLaunch) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "launch not found")
		return
	}
	entry, err := s.history.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "launch not found")
		return
	}
	if err != nil {
		log.ForLaunch(s.logger, id).Error("failed to read launch history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read launch history")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleListHistory handles GET /history?limit=N.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := history.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list launch history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list launch history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
