package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/middleware"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/push"
)

// PushHandler stores Web Push subscriptions for the current user.
type PushHandler struct {
	store *push.Store
}

func NewPushHandler(store *push.Store) *PushHandler {
	return &PushHandler{store: store}
}

// SubscribeRequest carries the subscription from PushManager.subscribe().
type SubscribeRequest struct {
	Subscription push.Subscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err := h.store.Save(r.Context(), userID, req.Subscription); err != nil {
		logger.Errorf("handler: push subscribe user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.store.Remove(r.Context(), userID, req.Endpoint); err != nil {
		logger.Errorf("handler: push unsubscribe user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
