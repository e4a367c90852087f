package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/chat"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/feed"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/repository"
)

type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	controller *chat.Controller
	feed       feed.Feed
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(controller *chat.Controller, f feed.Feed, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		controller: controller,
		feed:       f,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
		c.setSubscription(nil)
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Feed teardown and network I/O outside the lock.
	c.Close()
	c.setSubscription(nil)
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSubscribe:
		h.handleSubscribe(ctx, c, msg)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventStartSession:
		h.handleStartSession(ctx, c, msg)
	case EventMarkRead:
		h.handleMarkRead(ctx, c, msg)
	case EventCloseSession:
		h.handleCloseSession(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSubscribe", time.Now())()
	if msg.SessionID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "session_id required"})
		return
	}
	if err := h.subscribeClient(ctx, c, msg.SessionID); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: err.Error()})
	}
}

// subscribeClient attaches the client to a session: authorization, feed
// subscriptions, history seed and the forwarding goroutine. A previous
// subscription is torn down, one session per connection.
func (h *Hub) subscribeClient(ctx context.Context, c *Client, sessionID string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := h.controller.Session(lookupCtx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errors.New("session not found")
		}
		logger.Errorf("ws subscribe session=%s user=%s: %v", sessionID, c.userID, err)
		return errors.New("internal error")
	}
	if c.role != model.RoleAdmin && s.UserID != c.userID {
		return errors.New("not your session")
	}

	// Subscribe before loading history: events landing in between sit in
	// the channel buffer and are deduplicated against the seeded history.
	msgCh, cancelMsg, err := h.feed.SubscribeMessages(ctx, sessionID)
	if err != nil {
		logger.Errorf("ws subscribe messages session=%s: %v", sessionID, err)
		return errors.New("internal error")
	}
	sesCh, cancelSes, err := h.feed.SubscribeSession(ctx, sessionID)
	if err != nil {
		cancelMsg()
		logger.Errorf("ws subscribe session feed session=%s: %v", sessionID, err)
		return errors.New("internal error")
	}

	history, err := h.controller.History(lookupCtx, sessionID)
	if err != nil {
		cancelMsg()
		cancelSes()
		logger.Errorf("ws load history session=%s: %v", sessionID, err)
		return errors.New("internal error")
	}

	sub := &subscription{
		sessionID: sessionID,
		thread:    chat.NewThread(),
		cancelMsg: cancelMsg,
		cancelSes: cancelSes,
		done:      make(chan struct{}),
	}
	sub.thread.Seed(history)

	h.sendToClient(c, OutgoingMessage{Type: EventHistory, Payload: HistoryPayload{
		Session:  *s,
		Messages: sub.thread.Messages(),
	}})

	go h.forward(c, sub, msgCh, sesCh)
	c.setSubscription(sub)
	return nil
}

// forward pipes feed events to the client. Every message event passes
// through the subscription's Thread first, so duplicates (the ack already
// applied the row, or the feed delivered twice) are absorbed here and
// never reach the browser.
func (h *Hub) forward(c *Client, sub *subscription, msgCh <-chan feed.MessageEvent, sesCh <-chan feed.SessionEvent) {
	defer close(sub.done)
	for msgCh != nil || sesCh != nil {
		select {
		case ev, ok := <-msgCh:
			if !ok {
				msgCh = nil
				continue
			}
			if !sub.thread.ApplyMessageEvent(ev) {
				continue
			}
			evType := EventNewMessage
			if ev.Type == feed.EventUpdate {
				evType = EventMessageUpdated
			}
			h.sendToClient(c, OutgoingMessage{Type: evType, Payload: ev.New})
		case ev, ok := <-sesCh:
			if !ok {
				sesCh = nil
				continue
			}
			h.sendToClient(c, OutgoingMessage{Type: EventSessionUpdated, Payload: SessionUpdatedPayload{
				Session: ev.New,
				Old:     ev.Old,
			}})
		}
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	sub := c.subscription()
	if sub == nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "subscribe to a session first"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, err := h.controller.SendMessage(ctx, sub.sessionID, c.userID, c.role, msg.Content)
	if err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventMessageRejected, Payload: MessageRejectedPayload{
			TempID:  msg.TempID,
			Content: msg.Content,
			Reason:  rejectReason(err),
		}})
		return
	}

	// Mark the row as seen in the thread so the feed echo is not forwarded
	// on top of the ack. If the feed already beat us here this is a no-op.
	sub.thread.ApplyMessageEvent(feed.MessageEvent{Type: feed.EventInsert, New: *m})
	h.sendToClient(c, OutgoingMessage{Type: EventMessageAck, Payload: MessageAckPayload{
		TempID:  msg.TempID,
		Message: *m,
	}})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, chat.ErrSessionClosed):
		return "session closed"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "empty message"
	case errors.Is(err, repository.ErrNotFound):
		return "session not found"
	default:
		return "failed to send"
	}
}

func (h *Hub) handleStartSession(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleStartSession", time.Now())()
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := h.controller.StartSession(opCtx, c.userID, msg.Content)
	if err != nil {
		logger.Errorf("ws start session user=%s: %v", c.userID, err)
		if s == nil {
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to start session"})
			return
		}
		// Session exists, the first message failed; the client can resend.
		h.sendToClient(c, OutgoingMessage{Type: EventMessageRejected, Payload: MessageRejectedPayload{
			TempID:  msg.TempID,
			Content: msg.Content,
			Reason:  "failed to send",
		}})
	}
	h.sendToClient(c, OutgoingMessage{Type: EventSessionCreated, Payload: s})
	if err := h.subscribeClient(ctx, c, s.ID); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: err.Error()})
	}
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, msg IncomingMessage) {
	if c.role != model.RoleAdmin {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "admin only"})
		return
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		if sub := c.subscription(); sub != nil {
			sessionID = sub.sessionID
		}
	}
	if sessionID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "session_id required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.controller.MarkRead(ctx, sessionID); err != nil {
		logger.Errorf("ws mark read session=%s: %v", sessionID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to mark read"})
	}
}

func (h *Hub) handleCloseSession(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleCloseSession", time.Now())()
	if c.role != model.RoleAdmin {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "admin only"})
		return
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		if sub := c.subscription(); sub != nil {
			sessionID = sub.sessionID
		}
	}
	if sessionID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "session_id required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.controller.Close(ctx, sessionID); err != nil {
		logger.Errorf("ws close session=%s: %v", sessionID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to close session"})
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
