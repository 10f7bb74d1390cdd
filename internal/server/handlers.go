package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"storyloom/internal/logging"
	"storyloom/internal/runner"
	"storyloom/internal/services"
	"storyloom/internal/session"
	"storyloom/internal/story"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := story.ModeInteractive
	if strings.TrimSpace(req.Mode) != "" {
		parsed, err := story.ParseMode(req.Mode)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	st, err := s.runner.Start(r.Context(), story.Request{
		Idea:            req.Idea,
		Genre:           req.Genre,
		Style:           req.Style,
		Episodes:        req.Episodes,
		EpisodeDuration: req.EpisodeDuration,
		Characters:      req.Characters,
		Audience:        req.Audience,
		Platform:        req.Platform,
	}, mode)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, StateResponse{State: st})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var status session.Status
	if value := strings.TrimSpace(r.URL.Query().Get("status")); value != "" {
		parsed, err := session.ParseStatus(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	sessions, err := s.runner.ListSessions(r.Context(), status)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, summarize(sess))
	}
	s.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: summaries})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	checkpoints, err := s.store.Checkpoints(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SessionDetail{
		SessionSummary: summarize(sess),
		Checkpoints:    checkpointViews(checkpoints),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.runner.DeleteSession(r.Context(), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.runner.GetState(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{State: st})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := s.runner.Approve(r.Context(), id, req.Approved, req.Feedback)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{State: st})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.runner.Resume(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{State: st})
}

func (s *Server) handleEditArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req EditArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		s.writeError(w, http.StatusBadRequest, "artifact path required")
		return
	}

	st, err := s.runner.EditArtifact(r.Context(), id, req.Path, req.Value)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{State: st})
}

func (s *Server) handleRefreshVideos(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tasks, err := s.runner.RefreshVideos(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TasksResponse{Tasks: tasks})
}

func (s *Server) handleRetryVideo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req RetryVideoRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	rec, err := s.runner.RetryVideo(r.Context(), vars["id"], vars["shot"], req.Platform)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TaskResponse{Task: rec})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := HealthResponse{Status: "ok", LLM: "unchecked"}

	health, err := s.store.CheckHealth(r.Context())
	if err != nil {
		payload.Status = "degraded"
		payload.Database.Error = err.Error()
	} else {
		payload.Database = DatabaseHealth{
			Path:     health.DBPath,
			Exists:   health.DatabaseExists,
			Readable: health.DatabaseReadable,
			Error:    health.Error,
		}
		if !health.DatabaseReadable {
			payload.Status = "degraded"
		}
	}

	if stats, err := s.store.Stats(r.Context()); err == nil {
		payload.Sessions = make(map[string]int, len(stats))
		for status, count := range stats {
			payload.Sessions[status.String()] = count
		}
	}

	if s.llm != nil {
		if err := s.llm.HealthCheck(r.Context()); err != nil {
			payload.LLM = err.Error()
			payload.Status = "degraded"
		} else {
			payload.LLM = "ok"
		}
	}
	if s.registry != nil {
		payload.Platforms = s.registry.Names()
	}

	status := http.StatusOK
	if payload.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

// writeFailure maps domain errors onto HTTP statuses. Unmapped errors are
// internal faults.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, runner.ErrUnknownShot),
		errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, runner.ErrNoPendingApproval),
		errors.Is(err, runner.ErrSessionCompleted),
		errors.Is(err, session.ErrVersionConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, story.ErrInvalidMutation),
		errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
