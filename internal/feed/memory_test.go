package feed

import (
	"context"
	"testing"
	"time"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

func msgEvent(sessionID, id string) MessageEvent {
	return MessageEvent{
		Type: EventInsert,
		New: model.ChatMessage{
			ID:        id,
			SessionID: sessionID,
			SenderID:  "u1",
			Content:   "hello",
			CreatedAt: time.Now().UTC(),
		},
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()

	ch, cancel, err := f.SubscribeMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := f.PublishMessage(ctx, msgEvent("s1", "m1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.New.ID != "m1" {
			t.Errorf("got id %q, want m1", ev.New.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemorySessionScoping(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()

	ch, cancel, err := f.SubscribeMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	f.PublishMessage(ctx, msgEvent("other", "m1"))
	f.PublishMessage(ctx, msgEvent("s1", "m2"))

	select {
	case ev := <-ch:
		if ev.New.ID != "m2" {
			t.Errorf("got id %q, want m2", ev.New.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The other session's event must not be delivered.
	select {
	case ev := <-ch:
		t.Errorf("unexpected event: %v", ev)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestMemoryCancelClosesChannel(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()

	ch, cancel, err := f.SubscribeMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after cancel must not panic.
	if err := f.PublishMessage(ctx, msgEvent("s1", "m1")); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
	// Cancel twice is safe.
	cancel()
}

func TestMemoryFanOut(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()

	ch1, cancel1, _ := f.SubscribeMessages(ctx, "s1")
	defer cancel1()
	ch2, cancel2, _ := f.SubscribeMessages(ctx, "s1")
	defer cancel2()

	f.PublishMessage(ctx, msgEvent("s1", "m1"))

	for i, ch := range []<-chan MessageEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.New.ID != "m1" {
				t.Errorf("subscriber %d: got id %q, want m1", i, ev.New.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestMemorySessionEvents(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()

	ch, cancel, err := f.SubscribeSession(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	old := model.ChatSession{ID: "s1", UserID: "u1", Status: model.SessionStatusUnread}
	updated := old
	updated.Status = model.SessionStatusRead
	f.PublishSession(ctx, SessionEvent{Type: EventUpdate, New: updated, Old: &old})

	select {
	case ev := <-ch:
		if ev.Type != EventUpdate {
			t.Errorf("got type %q, want UPDATE", ev.Type)
		}
		if ev.New.Status != model.SessionStatusRead {
			t.Errorf("got status %q, want read", ev.New.Status)
		}
		if ev.Old == nil || ev.Old.Status != model.SessionStatusUnread {
			t.Error("old row missing or wrong")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryDropOnFullBuffer(t *testing.T) {
	f := NewMemory()
	f.bufSize = 1
	ctx := context.Background()

	ch, cancel, _ := f.SubscribeMessages(ctx, "s1")
	defer cancel()

	// Fill the buffer, then one more that must be dropped (non-blocking).
	f.PublishMessage(ctx, msgEvent("s1", "m1"))
	f.PublishMessage(ctx, msgEvent("s1", "m2"))

	ev := <-ch
	if ev.New.ID != "m1" {
		t.Errorf("got %q, want m1", ev.New.ID)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
