package feed

import (
	"context"
	"sync"
)

// Memory is an in-process Feed for -dev mode and tests. Publish is
// non-blocking: events to full subscribers are dropped, mirroring the
// lossy semantics of the Redis transport.
type Memory struct {
	mu      sync.RWMutex
	next    int
	msgSubs map[string]map[int]chan MessageEvent
	sesSubs map[string]map[int]chan SessionEvent
	bufSize int
}

func NewMemory() *Memory {
	return &Memory{
		msgSubs: make(map[string]map[int]chan MessageEvent),
		sesSubs: make(map[string]map[int]chan SessionEvent),
		bufSize: defaultSubBuffer,
	}
}

func (f *Memory) PublishMessage(ctx context.Context, ev MessageEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.msgSubs[ev.New.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (f *Memory) PublishSession(ctx context.Context, ev SessionEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.sesSubs[ev.New.ID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (f *Memory) SubscribeMessages(ctx context.Context, sessionID string) (<-chan MessageEvent, func(), error) {
	ch := make(chan MessageEvent, f.bufSize)
	f.mu.Lock()
	id := f.next
	f.next++
	if f.msgSubs[sessionID] == nil {
		f.msgSubs[sessionID] = make(map[int]chan MessageEvent)
	}
	f.msgSubs[sessionID][id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if subs, ok := f.msgSubs[sessionID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.msgSubs, sessionID)
			}
		}
	}
	return ch, cancel, nil
}

func (f *Memory) SubscribeSession(ctx context.Context, sessionID string) (<-chan SessionEvent, func(), error) {
	ch := make(chan SessionEvent, f.bufSize)
	f.mu.Lock()
	id := f.next
	f.next++
	if f.sesSubs[sessionID] == nil {
		f.sesSubs[sessionID] = make(map[int]chan SessionEvent)
	}
	f.sesSubs[sessionID][id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if subs, ok := f.sesSubs[sessionID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.sesSubs, sessionID)
			}
		}
	}
	return ch, cancel, nil
}
