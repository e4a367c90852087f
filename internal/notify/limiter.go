package notify

import (
	"sync"
	"time"
)

// KeyedLimiter allows one event per key per rolling window. State is
// process-local and resets on restart, which for support notifications
// errs on the side of notifying once more rather than never.
type KeyedLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func NewKeyedLimiter(window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether an event for key may fire now and, if so, records
// the attempt.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if t, ok := l.last[key]; ok && now.Sub(t) < l.window {
		return false
	}
	l.last[key] = now
	return true
}
