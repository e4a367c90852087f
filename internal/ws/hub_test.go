package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/chat"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/feed"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.ChatSession
}

func (s *fakeSessionStore) Create(ctx context.Context, ses *model.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ses.ID] = *ses
	return nil
}

func (s *fakeSessionStore) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, ok := s.sessions[id]
	if !ok {
		return nil, errTestNotFound
	}
	out := ses
	return &out, nil
}

func (s *fakeSessionStore) LatestByUser(ctx context.Context, userID string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.ChatSession
	for _, ses := range s.sessions {
		if ses.UserID != userID {
			continue
		}
		if latest == nil || ses.CreatedAt.After(latest.CreatedAt) {
			cp := ses
			latest = &cp
		}
	}
	return latest, nil
}

func (s *fakeSessionStore) UpdateStatus(ctx context.Context, id string, status model.SessionStatus, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, ok := s.sessions[id]
	if !ok {
		return errTestNotFound
	}
	ses.Status = status
	ses.UpdatedAt = t
	s.sessions[id] = ses
	return nil
}

func (s *fakeSessionStore) Touch(ctx context.Context, id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, ok := s.sessions[id]
	if !ok {
		return errTestNotFound
	}
	ses.UpdatedAt = t
	s.sessions[id] = ses
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func (s *fakeMessageStore) Create(ctx context.Context, m *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *fakeMessageStore) ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var errTestNotFound = assert.AnError

// testServer wires hub + controller over an in-process feed and serves /ws
// with identity taken from query params.
func testServer(t *testing.T) (*httptest.Server, *chat.Controller, func()) {
	t.Helper()
	sessions := &fakeSessionStore{sessions: make(map[string]model.ChatSession)}
	messages := &fakeMessageStore{}
	bus := feed.NewMemory()
	controller := chat.NewController(sessions, messages, bus, nil)

	hub := NewHub(controller, bus, 100)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(hubCtx)
	}()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		role := model.Role(r.URL.Query().Get("role"))
		if role == "" {
			role = model.RoleMember
		}
		ctx, cancel := context.WithCancel(context.Background())
		client := NewClient(hub, conn, r.URL.Query().Get("user"), role)
		client.Start(ctx, cancel)
		hub.Register(client)
	}))

	stop := func() {
		srv.Close()
		hubCancel()
		wg.Wait()
	}
	return srv, controller, stop
}

func dial(t *testing.T, srv *httptest.Server, userID string, role model.Role) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID + "&role=" + string(role)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, msg IncomingMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil reads frames until one matches type want, returning everything
// read along the way.
func readUntil(t *testing.T, conn *websocket.Conn, want EventType) (frame, []frame) {
	t.Helper()
	var seen []frame
	for i := 0; i < 20; i++ {
		f := readFrame(t, conn)
		if f.Type == want {
			return f, seen
		}
		seen = append(seen, f)
	}
	t.Fatalf("did not receive %s", want)
	return frame{}, nil
}

func TestHubStartSessionAndHistory(t *testing.T) {
	srv, _, stop := testServer(t)
	defer stop()

	member := dial(t, srv, "member-1", model.RoleMember)
	send(t, member, IncomingMessage{Type: EventStartSession, Content: "最初の相談です"})

	created, _ := readUntil(t, member, EventSessionCreated)
	var s model.ChatSession
	require.NoError(t, json.Unmarshal(created.Payload, &s))
	assert.Equal(t, model.SessionStatusUnread, s.Status)
	assert.Equal(t, "member-1", s.UserID)

	history, _ := readUntil(t, member, EventHistory)
	var hp HistoryPayload
	require.NoError(t, json.Unmarshal(history.Payload, &hp))
	assert.Equal(t, s.ID, hp.Session.ID)
	require.Len(t, hp.Messages, 1)
	assert.Equal(t, "最初の相談です", hp.Messages[0].Content)
}

func TestHubSendMessageAckAndNoDuplicate(t *testing.T) {
	srv, controller, stop := testServer(t)
	defer stop()

	s, err := controller.StartSession(context.Background(), "member-1", "")
	require.NoError(t, err)

	member := dial(t, srv, "member-1", model.RoleMember)
	send(t, member, IncomingMessage{Type: EventSubscribe, SessionID: s.ID})
	readUntil(t, member, EventHistory)

	tempID := model.NewTempID()
	send(t, member, IncomingMessage{Type: EventSendMessage, TempID: tempID, Content: "hello"})

	ack, before := readUntil(t, member, EventMessageAck)
	var ap MessageAckPayload
	require.NoError(t, json.Unmarshal(ack.Payload, &ap))
	assert.Equal(t, tempID, ap.TempID)
	assert.Equal(t, "hello", ap.Message.Content)
	assert.False(t, model.IsTempID(ap.Message.ID))

	// The feed echo may have raced ahead of the ack, but the same row must
	// never be forwarded twice.
	count := 0
	for _, f := range append(before, drain(t, member)...) {
		if f.Type != EventNewMessage {
			continue
		}
		var m model.ChatMessage
		require.NoError(t, json.Unmarshal(f.Payload, &m))
		if m.ID == ap.Message.ID {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1)
}

// drain reads whatever arrives within a short window.
func drain(t *testing.T, conn *websocket.Conn) []frame {
	t.Helper()
	var out []frame
	for {
		_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return out
		}
		out = append(out, f)
	}
}

func TestHubCounterpartSeesMessageOnce(t *testing.T) {
	srv, controller, stop := testServer(t)
	defer stop()

	s, err := controller.StartSession(context.Background(), "member-1", "")
	require.NoError(t, err)

	admin := dial(t, srv, "admin-1", model.RoleAdmin)
	send(t, admin, IncomingMessage{Type: EventSubscribe, SessionID: s.ID})
	readUntil(t, admin, EventHistory)

	member := dial(t, srv, "member-1", model.RoleMember)
	send(t, member, IncomingMessage{Type: EventSubscribe, SessionID: s.ID})
	readUntil(t, member, EventHistory)

	send(t, member, IncomingMessage{Type: EventSendMessage, TempID: model.NewTempID(), Content: "質問があります"})

	got, _ := readUntil(t, admin, EventNewMessage)
	var m model.ChatMessage
	require.NoError(t, json.Unmarshal(got.Payload, &m))
	assert.Equal(t, "質問があります", m.Content)
	assert.False(t, model.IsTempID(m.ID))

	for _, f := range drain(t, admin) {
		if f.Type == EventNewMessage {
			var dup model.ChatMessage
			require.NoError(t, json.Unmarshal(f.Payload, &dup))
			assert.NotEqual(t, m.ID, dup.ID, "duplicate delivery reached the client")
		}
	}
}

func TestHubCloseSessionFlow(t *testing.T) {
	srv, controller, stop := testServer(t)
	defer stop()

	s, err := controller.StartSession(context.Background(), "member-1", "")
	require.NoError(t, err)

	member := dial(t, srv, "member-1", model.RoleMember)
	send(t, member, IncomingMessage{Type: EventSubscribe, SessionID: s.ID})
	readUntil(t, member, EventHistory)

	admin := dial(t, srv, "admin-1", model.RoleAdmin)
	send(t, admin, IncomingMessage{Type: EventSubscribe, SessionID: s.ID})
	readUntil(t, admin, EventHistory)

	send(t, admin, IncomingMessage{Type: EventCloseSession, SessionID: s.ID})

	// The member sees the closing notice and the status flip, in either order.
	notice, earlier := readUntil(t, member, EventNewMessage)
	var m model.ChatMessage
	require.NoError(t, json.Unmarshal(notice.Payload, &m))
	assert.Equal(t, model.CloseNotice, m.Content)
	assert.Equal(t, model.SenderSystem, m.SenderID)

	var update *frame
	for _, f := range earlier {
		if f.Type == EventSessionUpdated {
			update = &f
			break
		}
	}
	if update == nil {
		u, _ := readUntil(t, member, EventSessionUpdated)
		update = &u
	}
	var sp SessionUpdatedPayload
	require.NoError(t, json.Unmarshal(update.Payload, &sp))
	assert.Equal(t, model.SessionStatusClosed, sp.Session.Status)

	// Sends into the closed session are rejected.
	tempID := model.NewTempID()
	send(t, member, IncomingMessage{Type: EventSendMessage, TempID: tempID, Content: "too late"})
	rejected, _ := readUntil(t, member, EventMessageRejected)
	var rp MessageRejectedPayload
	require.NoError(t, json.Unmarshal(rejected.Payload, &rp))
	assert.Equal(t, tempID, rp.TempID)
	assert.Equal(t, "too late", rp.Content)
	assert.Equal(t, "session closed", rp.Reason)
}

func TestHubSubscribeAuthorization(t *testing.T) {
	srv, controller, stop := testServer(t)
	defer stop()

	s, err := controller.StartSession(context.Background(), "member-1", "")
	require.NoError(t, err)

	stranger := dial(t, srv, "member-2", model.RoleMember)
	send(t, stranger, IncomingMessage{Type: EventSubscribe, SessionID: s.ID})
	errFrame, _ := readUntil(t, stranger, EventError)
	var reason string
	require.NoError(t, json.Unmarshal(errFrame.Payload, &reason))
	assert.Equal(t, "not your session", reason)

	// Admin-only verbs are rejected for members.
	send(t, stranger, IncomingMessage{Type: EventCloseSession, SessionID: s.ID})
	errFrame, _ = readUntil(t, stranger, EventError)
	require.NoError(t, json.Unmarshal(errFrame.Payload, &reason))
	assert.Equal(t, "admin only", reason)
}
