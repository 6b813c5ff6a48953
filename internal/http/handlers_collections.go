package http

import (
	"log/slog"
	"net/http"

	"tempo/internal/core"
	"tempo/internal/storage"
)

// handleSessionsFile serves the raw session file. GET returns the stored
// array (empty when the file is missing); POST replaces it wholesale with the
// request body, exactly as the dashboard front-end expects.
func (s *Server) handleSessionsFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		v, err := s.store.LoadRaw(r.Context(), storage.SessionsFile)
		if err != nil {
			slog.ErrorContext(r.Context(), "Load sessions failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read sessions")
			return
		}
		writeJSON(w, http.StatusOK, v)
	case http.MethodPost:
		var body []any
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON array")
			return
		}
		if err := s.store.SaveRaw(r.Context(), storage.SessionsFile, body); err != nil {
			slog.ErrorContext(r.Context(), "Save sessions failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to write sessions")
			return
		}
		s.invalidateRollups()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(body)})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleProjectsFile serves the project catalog. A missing file yields the
// seed catalog rather than an empty list so a fresh install renders forms.
func (s *Server) handleProjectsFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.store.LoadProjects(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Load projects failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read projects")
			return
		}
		writeJSON(w, http.StatusOK, projects)
	case http.MethodPost:
		var projects []core.Project
		if err := decodeBody(w, r, &projects); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON array of projects")
			return
		}
		if err := s.store.SaveProjects(r.Context(), projects); err != nil {
			slog.ErrorContext(r.Context(), "Save projects failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to write projects")
			return
		}
		s.invalidateRollups()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(projects)})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAchievementsFile is the overwrite route: POST replaces the whole
// achievements file with the request body.
func (s *Server) handleAchievementsFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		achievements, err := s.store.LoadAchievements(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Load achievements failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read achievements")
			return
		}
		writeJSON(w, http.StatusOK, achievements)
	case http.MethodPost:
		var achievements []core.Achievement
		if err := decodeBody(w, r, &achievements); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON array of achievements")
			return
		}
		if err := s.store.SaveAchievements(r.Context(), achievements); err != nil {
			slog.ErrorContext(r.Context(), "Save achievements failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to write achievements")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(achievements)})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAchievementsMerge is the merge route: incoming notes update existing
// ids in place and append the rest, so a re-posted payload never duplicates.
func (s *Server) handleAchievementsMerge(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		achievements, err := s.store.LoadAchievements(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Load achievements failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read achievements")
			return
		}
		writeJSON(w, http.StatusOK, achievements)
	case http.MethodPost:
		var incoming []core.Achievement
		if err := decodeBody(w, r, &incoming); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON array of achievements")
			return
		}
		for _, a := range incoming {
			if err := a.Validate(); err != nil {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
		}
		merged, err := s.store.MergeAchievements(r.Context(), incoming)
		if err != nil {
			slog.ErrorContext(r.Context(), "Merge achievements failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to merge achievements")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(merged)})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleUploadsFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		uploads, err := s.store.LoadUploads(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Load uploads failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read uploads")
			return
		}
		writeJSON(w, http.StatusOK, uploads)
	case http.MethodPost:
		var uploads []core.Upload
		if err := decodeBody(w, r, &uploads); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON array of uploads")
			return
		}
		if err := s.store.SaveUploads(r.Context(), uploads); err != nil {
			slog.ErrorContext(r.Context(), "Save uploads failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to write uploads")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(uploads)})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
