package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

type stubAdmins struct{ ids []string }

func (s stubAdmins) ListAdminIDs(ctx context.Context) ([]string, error) { return s.ids, nil }

type stubPusher struct {
	mu    sync.Mutex
	calls []string
}

func (p *stubPusher) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, userID)
}

func testMessage(sessionID, senderID, content string) *model.ChatMessage {
	return &model.ChatMessage{
		ID:        "m1",
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatcherPostsSlackWebhook(t *testing.T) {
	var mu sync.Mutex
	var payloads []slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p slackPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, NewKeyedLimiter(time.Hour), nil, nil)
	d.NotifyNewMessage(context.Background(), "member-1", testMessage("s1", "member-1", "こんにちは"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	require.Len(t, payloads[0].Attachments, 1)
	assert.Equal(t, "こんにちは", payloads[0].Attachments[0].Text)
	assert.Equal(t, "member-1", payloads[0].Attachments[0].Fields[0].Value)
	assert.Equal(t, "s1", payloads[0].Attachments[0].Fields[1].Value)
}

func TestDispatcherThrottlesPerSender(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, NewKeyedLimiter(time.Hour), nil, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.NotifyNewMessage(ctx, "member-1", testMessage("s1", "member-1", "spam"))
	}
	// A different sender is throttled independently.
	d.NotifyNewMessage(ctx, "member-2", testMessage("s2", "member-2", "hello"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, hits)
}

func TestDispatcherThrottleWindowExpires(t *testing.T) {
	l := NewKeyedLimiter(time.Hour)
	base := time.Now()
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow("member-1"))
	assert.False(t, l.Allow("member-1"))

	base = base.Add(59 * time.Minute)
	assert.False(t, l.Allow("member-1"))

	base = base.Add(2 * time.Minute)
	assert.True(t, l.Allow("member-1"))
}

func TestDispatcherFansOutToAdmins(t *testing.T) {
	pusher := &stubPusher{}
	d := NewDispatcher("", NewKeyedLimiter(time.Hour), stubAdmins{ids: []string{"admin-1", "admin-2"}}, pusher)

	d.NotifyNewMessage(context.Background(), "member-1", testMessage("s1", "member-1", "help"))

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	assert.Equal(t, []string{"admin-1", "admin-2"}, pusher.calls)
}

func TestDispatcherSwallowsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, NewKeyedLimiter(time.Hour), nil, nil)
	// Must not panic or propagate anything.
	d.NotifyNewMessage(context.Background(), "member-1", testMessage("s1", "member-1", "hello"))
}

func TestPreviewTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("あ", messagePreviewLimit+50)
	got := preview(long)
	assert.Equal(t, messagePreviewLimit+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
