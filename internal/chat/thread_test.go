package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/feed"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

func authoritative(sessionID, senderID, content string, at time.Time) model.ChatMessage {
	return model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: at,
	}
}

func insertEvent(m model.ChatMessage) feed.MessageEvent {
	return feed.MessageEvent{Type: feed.EventInsert, New: m}
}

func TestThreadDuplicateDeliveryIsIdempotent(t *testing.T) {
	th := NewThread()
	row := authoritative("s1", "u1", "hello", time.Now().UTC())

	assert.True(t, th.ApplyMessageEvent(insertEvent(row)))
	assert.False(t, th.ApplyMessageEvent(insertEvent(row)))
	assert.False(t, th.ApplyMessageEvent(insertEvent(row)))

	assert.Equal(t, 1, th.Len())
}

func TestThreadConvergesAckFirst(t *testing.T) {
	th := NewThread()
	temp := th.AppendOptimistic("s1", "u1", "hello")
	require.True(t, model.IsTempID(temp.ID))

	row := authoritative("s1", "u1", "hello", time.Now().UTC())
	assert.True(t, th.ResolveSend(temp.ID, row))
	// Feed delivers the same row afterwards: no-op.
	assert.False(t, th.ApplyMessageEvent(insertEvent(row)))

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, row.ID, msgs[0].ID)
}

func TestThreadConvergesFeedFirst(t *testing.T) {
	th := NewThread()
	temp := th.AppendOptimistic("s1", "u1", "hello")

	row := authoritative("s1", "u1", "hello", time.Now().UTC())
	// Feed beats the ack: the temp entry is replaced by (content, sender).
	assert.True(t, th.ApplyMessageEvent(insertEvent(row)))
	// Late ack finds the temp entry gone.
	assert.False(t, th.ResolveSend(temp.ID, row))

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, row.ID, msgs[0].ID)
	assert.False(t, model.IsTempID(msgs[0].ID))
}

func TestThreadFeedFirstMatchesOldestTemp(t *testing.T) {
	th := NewThread()
	first := th.AppendOptimistic("s1", "u1", "ping")
	second := th.AppendOptimistic("s1", "u1", "ping")

	rowA := authoritative("s1", "u1", "ping", time.Now().UTC())
	rowB := authoritative("s1", "u1", "ping", time.Now().UTC().Add(time.Millisecond))

	require.True(t, th.ApplyMessageEvent(insertEvent(rowA)))
	// The oldest temp entry was consumed first.
	assert.False(t, th.ResolveSend(first.ID, rowA))
	assert.True(t, th.ResolveSend(second.ID, rowB))

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, rowA.ID, msgs[0].ID)
	assert.Equal(t, rowB.ID, msgs[1].ID)
}

func TestThreadRollbackReturnsContent(t *testing.T) {
	th := NewThread()
	temp := th.AppendOptimistic("s1", "u1", "draft text")

	content, ok := th.Rollback(temp.ID)
	require.True(t, ok)
	assert.Equal(t, "draft text", content)
	assert.Equal(t, 0, th.Len())

	_, ok = th.Rollback(temp.ID)
	assert.False(t, ok)
}

func TestThreadOrderedByCreatedAt(t *testing.T) {
	th := NewThread()
	base := time.Now().UTC()
	late := authoritative("s1", "u2", "third", base.Add(2*time.Second))
	early := authoritative("s1", "u1", "first", base)
	mid := authoritative("s1", "u2", "second", base.Add(time.Second))

	th.ApplyMessageEvent(insertEvent(late))
	th.ApplyMessageEvent(insertEvent(early))
	th.ApplyMessageEvent(insertEvent(mid))

	msgs := th.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

func TestThreadSeedSortsHistory(t *testing.T) {
	th := NewThread()
	base := time.Now().UTC()
	th.Seed([]model.ChatMessage{
		authoritative("s1", "u1", "b", base.Add(time.Second)),
		authoritative("s1", "u1", "a", base),
	})

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "b", msgs[1].Content)
}

func TestThreadPassiveViewerNeverSeesTempIDs(t *testing.T) {
	sender := NewThread()
	viewer := NewThread()

	temp := sender.AppendOptimistic("s1", "u1", "hello")
	row := authoritative("s1", "u1", "hello", time.Now().UTC())

	// Only the sender holds a temp entry; the viewer gets the row via the
	// feed exactly once, by authoritative id.
	assert.True(t, viewer.ApplyMessageEvent(insertEvent(row)))
	assert.False(t, viewer.ApplyMessageEvent(insertEvent(row)))
	sender.ResolveSend(temp.ID, row)

	for _, m := range viewer.Messages() {
		assert.False(t, model.IsTempID(m.ID))
	}
	assert.Equal(t, 1, viewer.Len())
}

func TestThreadResolveSendKeepsLocalProfile(t *testing.T) {
	th := NewThread()
	temp := th.AppendOptimistic("s1", "u1", "hello")
	// Attach the profile the client already has in hand.
	msgs := th.Messages()
	require.Len(t, msgs, 1)

	profile := &model.Profile{ID: "u1", Email: "u1@example.com"}
	th.mu.Lock()
	th.list[0].Sender = profile
	th.mu.Unlock()

	row := authoritative("s1", "u1", "hello", time.Now().UTC())
	require.True(t, th.ResolveSend(temp.ID, row))

	msgs = th.Messages()
	require.NotNil(t, msgs[0].Sender)
	assert.Equal(t, "u1@example.com", msgs[0].Sender.Email)
}

func TestThreadUpdateReplacesById(t *testing.T) {
	th := NewThread()
	row := authoritative("s1", "u1", "original", time.Now().UTC())
	th.ApplyMessageEvent(insertEvent(row))

	edited := row
	edited.Content = "edited"
	assert.True(t, th.ApplyMessageEvent(feed.MessageEvent{Type: feed.EventUpdate, New: edited}))

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "edited", msgs[0].Content)

	unknown := authoritative("s1", "u1", "ghost", time.Now().UTC())
	assert.False(t, th.ApplyMessageEvent(feed.MessageEvent{Type: feed.EventUpdate, New: unknown}))
	assert.Equal(t, 1, th.Len())
}
