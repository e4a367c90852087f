package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/feed"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

// Thread is the in-memory ordered view of one session's messages. It gives
// a sender instant feedback (optimistic entries) and reconciles the two
// delivery paths, the direct write acknowledgment and the realtime change
// feed, which arrive over independent channels in either order and possibly
// duplicated. Safe for concurrent use.
//
// Invariants: at most one entry per authoritative id; temp entries exist
// only on the client that created them; order is created_at ascending.
type Thread struct {
	mu   sync.Mutex
	list []model.ChatMessage
}

func NewThread() *Thread {
	return &Thread{}
}

// Seed replaces the view with a loaded history.
func (t *Thread) Seed(history []model.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = append(t.list[:0:0], history...)
	t.sortLocked()
}

// AppendOptimistic inserts a temp-ID entry immediately, before the
// authoritative write resolves.
func (t *Thread) AppendOptimistic(sessionID, senderID, content string) model.ChatMessage {
	m := model.ChatMessage{
		ID:        model.NewTempID(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = append(t.list, m)
	return m
}

// ResolveSend replaces the temp entry with the authoritative row once the
// direct write acknowledgment arrives. A locally-attached sender profile is
// preserved so no redundant profile fetch is needed. Returns false when the
// temp entry is gone (already replaced by a feed event, or rolled back).
func (t *Thread) ResolveSend(tempID string, authoritative model.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.list {
		if t.list[i].ID == tempID {
			if authoritative.Sender == nil {
				authoritative.Sender = t.list[i].Sender
			}
			t.list[i] = authoritative
			t.sortLocked()
			return true
		}
	}
	return false
}

// Rollback removes a temp entry after a failed write and returns its
// content so the compose input can be repopulated.
func (t *Thread) Rollback(tempID string) (content string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.list {
		if t.list[i].ID == tempID {
			content = t.list[i].Content
			t.list = append(t.list[:i], t.list[i+1:]...)
			return content, true
		}
	}
	return "", false
}

// ApplyMessageEvent feeds a change-feed event into the view and reports
// whether the view changed. Idempotent against duplicate delivery.
func (t *Thread) ApplyMessageEvent(ev feed.MessageEvent) bool {
	switch ev.Type {
	case feed.EventInsert:
		return t.applyInsert(ev.New)
	case feed.EventUpdate:
		return t.applyUpdate(ev.New)
	}
	return false
}

func (t *Thread) applyInsert(row model.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.list {
		if t.list[i].ID == row.ID {
			// Duplicate delivery of an already-known row.
			return false
		}
	}
	// The feed event may beat the direct write acknowledgment: replace the
	// oldest unresolved temp entry matching (content, sender). FIFO is the
	// tie-break when identical messages are sent in quick succession.
	for i := range t.list {
		if model.IsTempID(t.list[i].ID) && t.list[i].Content == row.Content && t.list[i].SenderID == row.SenderID {
			if row.Sender == nil {
				row.Sender = t.list[i].Sender
			}
			t.list[i] = row
			t.sortLocked()
			return true
		}
	}
	// Delivery to a client that did not send this row (counterpart UI,
	// other tabs): plain sorted insert.
	t.list = append(t.list, row)
	t.sortLocked()
	return true
}

func (t *Thread) applyUpdate(row model.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.list {
		if t.list[i].ID == row.ID {
			if row.Sender == nil {
				row.Sender = t.list[i].Sender
			}
			t.list[i] = row
			t.sortLocked()
			return true
		}
	}
	// Updates match by authoritative id only; an unknown row is ignored.
	return false
}

// Messages returns a snapshot sorted by created_at ascending.
func (t *Thread) Messages() []model.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.ChatMessage, len(t.list))
	copy(out, t.list)
	return out
}

func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.list)
}

func (t *Thread) sortLocked() {
	sort.SliceStable(t.list, func(i, j int) bool {
		return t.list[i].CreatedAt.Before(t.list[j].CreatedAt)
	})
}
