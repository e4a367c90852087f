// Package feed is the realtime change feed for chat rows. Writers publish
// typed INSERT/UPDATE events per session; chat clients subscribe per
// session. Delivery is at-least-once and unordered relative to the direct
// write acknowledgment, so consumers must deduplicate.
package feed

import (
	"context"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// MessageEvent is a row change on the messages relation.
type MessageEvent struct {
	Type EventType         `json:"type"`
	New  model.ChatMessage `json:"new"`
}

// SessionEvent is a row change on the chat_sessions relation. Old carries
// the previous row for updates.
type SessionEvent struct {
	Type EventType          `json:"type"`
	New  model.ChatSession  `json:"new"`
	Old  *model.ChatSession `json:"old,omitempty"`
}

// Feed publishes and delivers per-session change events. The cancel func
// returned by Subscribe* tears the subscription down; after cancel the
// event channel is closed.
type Feed interface {
	PublishMessage(ctx context.Context, ev MessageEvent) error
	PublishSession(ctx context.Context, ev SessionEvent) error
	SubscribeMessages(ctx context.Context, sessionID string) (<-chan MessageEvent, func(), error)
	SubscribeSession(ctx context.Context, sessionID string) (<-chan SessionEvent, func(), error)
}
