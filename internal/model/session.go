package model

import "time"

type SessionStatus string

const (
	SessionStatusUnread SessionStatus = "unread"
	SessionStatusRead   SessionStatus = "read"
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// ChatSession is one support conversation between a member and the support
// team. The "current" session for a member is the most recently created one;
// a closed session is never reopened, a new one is created instead.
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	User      *Profile      `json:"user,omitempty"`
}

func (s *ChatSession) Closed() bool {
	return s.Status == SessionStatusClosed
}
