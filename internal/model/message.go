package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderSystem is the sender_id sentinel for automated notices. System
// messages render with fixed styling and never resolve to a profile.
const SenderSystem = "system"

// CloseNotice is the system message inserted when support closes a session.
const CloseNotice = "このチャットセッションは終了しました。新しいチャットを開始するには、新規チャットボタンをクリックしてください。"

// tempIDPrefix marks client-local optimistic messages. Server-assigned IDs
// are UUIDs and can never collide with it.
const tempIDPrefix = "temp-"

// ChatMessage is a single chat message. Immutable once created; ordered by
// CreatedAt ascending within a session.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sender    *Profile  `json:"sender,omitempty"`
}

func (m *ChatMessage) IsSystem() bool {
	return m.SenderID == SenderSystem
}

// NewTempID returns an identifier for an optimistic client-local message.
func NewTempID() string {
	return tempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id was generated by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
