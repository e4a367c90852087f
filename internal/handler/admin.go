package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/chat"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/repository"
)

// AdminHandler serves the support-team side: session inbox and lifecycle
// actions. Routes are mounted behind RequireAdmin.
type AdminHandler struct {
	controller  *chat.Controller
	sessionRepo *repository.SessionRepository
}

func NewAdminHandler(controller *chat.Controller, sessionRepo *repository.SessionRepository) *AdminHandler {
	return &AdminHandler{controller: controller, sessionRepo: sessionRepo}
}

// ListSessions returns recent sessions, most recently touched first, with
// the member profile attached.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	sessions, err := h.sessionRepo.ListRecent(r.Context(), limit)
	if err != nil {
		logger.Errorf("handler: list sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []model.ChatSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// MarkRead flags a session read (admin opened the thread).
func (h *AdminHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.controller.MarkRead(r.Context(), sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		logger.Errorf("handler: mark read session=%s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close ends the session: system notice first, then the status flip.
func (h *AdminHandler) Close(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.controller.Close(r.Context(), sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		logger.Errorf("handler: close session=%s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to close session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
