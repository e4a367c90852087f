package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/chat"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/middleware"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/repository"
)

// SessionHandler serves the member-facing chat endpoints.
type SessionHandler struct {
	controller *chat.Controller
}

func NewSessionHandler(controller *chat.Controller) *SessionHandler {
	return &SessionHandler{controller: controller}
}

type sessionResponse struct {
	Session *model.ChatSession `json:"session"`
}

// GetLatest returns the caller's most recent session regardless of status,
// or {"session": null} when the user has never chatted.
func (h *SessionHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	s, err := h.controller.LatestSession(r.Context(), userID)
	if err != nil {
		logger.Errorf("handler: latest session user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: s})
}

type StartSessionRequest struct {
	Message string `json:"message"`
}

// Start creates a new session, optionally with a first message.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req StartSessionRequest
	// Empty body is fine, a new session needs no first message.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s, err := h.controller.StartSession(r.Context(), userID, req.Message)
	if err != nil {
		logger.Errorf("handler: start session user=%s: %v", userID, err)
		if s == nil {
			writeError(w, http.StatusInternalServerError, "failed to start session")
			return
		}
		// Session created, first message failed: report the session anyway.
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: s})
}

// authorizeSession loads the session and checks the caller may touch it.
func (h *SessionHandler) authorizeSession(w http.ResponseWriter, r *http.Request) *model.ChatSession {
	sessionID := chi.URLParam(r, "id")
	s, err := h.controller.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return nil
		}
		logger.Errorf("handler: get session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil
	}
	if middleware.GetRole(r.Context()) != model.RoleAdmin && s.UserID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil
	}
	return s
}

// ListMessages returns the session history, created_at ascending.
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	s := h.authorizeSession(w, r)
	if s == nil {
		return
	}
	messages, err := h.controller.History(r.Context(), s.ID)
	if err != nil {
		logger.Errorf("handler: list messages session=%s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage is the REST send path (the WebSocket verb is preferred; this
// serves clients without a live socket).
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s := h.authorizeSession(w, r)
	if s == nil {
		return
	}
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	m, err := h.controller.SendMessage(r.Context(), s.ID, middleware.GetUserID(r.Context()), middleware.GetRole(r.Context()), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSessionClosed):
			writeError(w, http.StatusConflict, "session closed")
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "content required")
		default:
			logger.Errorf("handler: send message session=%s: %v", s.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// MarkActive bumps the session to active. Best-effort by contract, so the
// endpoint always answers 204.
func (h *SessionHandler) MarkActive(w http.ResponseWriter, r *http.Request) {
	s := h.authorizeSession(w, r)
	if s == nil {
		return
	}
	h.controller.MarkActive(r.Context(), s.ID)
	w.WriteHeader(http.StatusNoContent)
}
