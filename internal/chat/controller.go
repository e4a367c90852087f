// Package chat holds the session lifecycle and the message view
// reconciliation for the support chat.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/feed"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

var (
	ErrSessionClosed = errors.New("chat: session is closed")
	ErrEmptyMessage  = errors.New("chat: empty message")
)

type SessionStore interface {
	Create(ctx context.Context, s *model.ChatSession) error
	GetByID(ctx context.Context, id string) (*model.ChatSession, error)
	LatestByUser(ctx context.Context, userID string) (*model.ChatSession, error)
	UpdateStatus(ctx context.Context, id string, status model.SessionStatus, t time.Time) error
	Touch(ctx context.Context, id string, t time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.ChatMessage) error
	ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

// Notifier is told about new member messages. Implementations are
// best-effort and must not block the send path.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, senderID string, m *model.ChatMessage)
}

// Controller drives the session state machine (unread -> read -> active ->
// closed) and the message write path. Every successful write is mirrored to
// the change feed.
type Controller struct {
	sessions SessionStore
	messages MessageStore
	feed     feed.Feed
	notifier Notifier
}

func NewController(sessions SessionStore, messages MessageStore, f feed.Feed, n Notifier) *Controller {
	return &Controller{sessions: sessions, messages: messages, feed: f, notifier: n}
}

// LatestSession returns the user's most recent session regardless of
// status, or (nil, nil) when the user has never chatted.
func (c *Controller) LatestSession(ctx context.Context, userID string) (*model.ChatSession, error) {
	return c.sessions.LatestByUser(ctx, userID)
}

// Session looks up a session by id.
func (c *Controller) Session(ctx context.Context, id string) (*model.ChatSession, error) {
	return c.sessions.GetByID(ctx, id)
}

// History returns the session's messages ordered by created_at ascending,
// sender profiles attached.
func (c *Controller) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return c.messages.ListBySession(ctx, sessionID)
}

// StartSession creates a fresh unread session for the user and sends the
// first message when one is given. A previous closed session stays in
// place as history. When the first message fails the created session is
// still returned alongside the error.
func (c *Controller) StartSession(ctx context.Context, userID, firstMessage string) (*model.ChatSession, error) {
	defer logger.DeferLogDuration("chat.StartSession", time.Now())()
	now := time.Now().UTC()
	s := &model.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    model.SessionStatusUnread,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("chat.StartSession: %w", err)
	}
	c.publishSession(ctx, feed.SessionEvent{Type: feed.EventInsert, New: *s})
	if strings.TrimSpace(firstMessage) != "" {
		if _, err := c.SendMessage(ctx, s.ID, userID, model.RoleMember, firstMessage); err != nil {
			return s, fmt.Errorf("chat.StartSession first message: %w", err)
		}
	}
	return s, nil
}

// SendMessage persists a message, bumps the session's updated_at and
// publishes the INSERT to the feed. Member messages also go to the
// notifier, fire-and-forget. Sends into a closed session are rejected
// with ErrSessionClosed.
func (c *Controller) SendMessage(ctx context.Context, sessionID, senderID string, role model.Role, content string) (*model.ChatMessage, error) {
	defer logger.DeferLogDuration("chat.SendMessage", time.Now())()
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	s, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat.SendMessage: %w", err)
	}
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	now := time.Now().UTC()
	m := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}
	if err := c.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("chat.SendMessage: %w", err)
	}
	if err := c.sessions.Touch(ctx, sessionID, now); err != nil {
		logger.Errorf("chat: touch session %s: %v", sessionID, err)
	}
	c.publishMessage(ctx, feed.MessageEvent{Type: feed.EventInsert, New: *m})
	if c.notifier != nil && role != model.RoleAdmin && senderID != model.SenderSystem {
		go c.notifier.NotifyNewMessage(context.WithoutCancel(ctx), senderID, m)
	}
	return m, nil
}

// MarkRead flags the session as read (an admin opened it).
func (c *Controller) MarkRead(ctx context.Context, sessionID string) error {
	return c.setStatus(ctx, sessionID, model.SessionStatusRead)
}

// MarkActive flags the session as active once an admin has replied.
// Best-effort: a failure is logged and the chat carries on, the status is
// presentation state only.
func (c *Controller) MarkActive(ctx context.Context, sessionID string) {
	if err := c.setStatus(ctx, sessionID, model.SessionStatusActive); err != nil {
		logger.Errorf("chat: mark active session %s: %v", sessionID, err)
	}
}

// Close posts the closing system notice and then marks the session closed.
// Closing an already-closed session is a no-op. When the status update
// fails after the notice was written there is no compensating delete; the
// caller sees the error and can retry, the duplicate notice is harmless.
func (c *Controller) Close(ctx context.Context, sessionID string) error {
	defer logger.DeferLogDuration("chat.Close", time.Now())()
	s, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("chat.Close: %w", err)
	}
	if s.Closed() {
		return nil
	}
	now := time.Now().UTC()
	notice := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  model.SenderSystem,
		Content:   model.CloseNotice,
		CreatedAt: now,
	}
	if err := c.messages.Create(ctx, notice); err != nil {
		return fmt.Errorf("chat.Close notice: %w", err)
	}
	c.publishMessage(ctx, feed.MessageEvent{Type: feed.EventInsert, New: *notice})
	if err := c.setStatus(ctx, sessionID, model.SessionStatusClosed); err != nil {
		return fmt.Errorf("chat.Close: %w", err)
	}
	return nil
}

func (c *Controller) setStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	old, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := c.sessions.UpdateStatus(ctx, sessionID, status, now); err != nil {
		return err
	}
	updated := *old
	updated.Status = status
	updated.UpdatedAt = now
	c.publishSession(ctx, feed.SessionEvent{Type: feed.EventUpdate, New: updated, Old: old})
	return nil
}

// Feed publishes are best-effort: a dropped event only delays realtime
// delivery, the row is already persisted.
func (c *Controller) publishMessage(ctx context.Context, ev feed.MessageEvent) {
	if err := c.feed.PublishMessage(ctx, ev); err != nil {
		logger.Errorf("chat: publish message event session=%s: %v", ev.New.SessionID, err)
	}
}

func (c *Controller) publishSession(ctx context.Context, ev feed.SessionEvent) {
	if err := c.feed.PublishSession(ctx, ev); err != nil {
		logger.Errorf("chat: publish session event session=%s: %v", ev.New.ID, err)
	}
}
