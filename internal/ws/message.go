package ws

import (
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

type EventType string

const (
	// Client -> server.
	EventSubscribe    EventType = "subscribe"
	EventSendMessage  EventType = "send_message"
	EventStartSession EventType = "start_session"
	EventMarkRead     EventType = "mark_read"
	EventCloseSession EventType = "close_session"

	// Server -> client.
	EventHistory         EventType = "history"
	EventNewMessage      EventType = "message_new"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageAck      EventType = "message_ack"
	EventMessageRejected EventType = "message_rejected"
	EventSessionCreated  EventType = "session_created"
	EventSessionUpdated  EventType = "session_updated"
	EventError           EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`

	// For send_message: the client-generated optimistic id, echoed back in
	// the ack or rejection. For start_session: content is the optional
	// first message.
	TempID  string `json:"temp_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// HistoryPayload seeds the client view right after subscribe.
type HistoryPayload struct {
	Session  model.ChatSession   `json:"session"`
	Messages []model.ChatMessage `json:"messages"`
}

// MessageAckPayload resolves the sender's optimistic entry.
type MessageAckPayload struct {
	TempID  string            `json:"temp_id"`
	Message model.ChatMessage `json:"message"`
}

// MessageRejectedPayload rolls the optimistic entry back; content is
// returned so the compose input can be repopulated.
type MessageRejectedPayload struct {
	TempID  string `json:"temp_id"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// SessionUpdatedPayload is sent on status transitions. Old carries the
// previous row when known.
type SessionUpdatedPayload struct {
	Session model.ChatSession  `json:"session"`
	Old     *model.ChatSession `json:"old,omitempty"`
}
