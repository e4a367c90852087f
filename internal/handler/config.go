package handler

import (
	"net/http"
)

// ConfigHandler serves public client configuration.
type ConfigHandler struct {
	vapidPublicKey string
}

func NewConfigHandler(vapidPublicKey string) *ConfigHandler {
	return &ConfigHandler{vapidPublicKey: vapidPublicKey}
}

// GetPushConfig returns the public VAPID key for push subscription, or
// enabled=false when push is not configured.
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.vapidPublicKey,
	})
}
