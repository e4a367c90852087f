package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *model.ChatSession) error {
	defer logger.DeferLogDuration("session.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	defer logger.DeferLogDuration("session.GetByID", time.Now())()
	s := &model.ChatSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, created_at, updated_at
		 FROM chat_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", err)
	}
	return s, nil
}

// LatestByUser returns the most recently created session for a user, or
// nil without error when the user has never chatted. Absence is a normal
// outcome: the caller creates a session on the first send.
func (r *SessionRepository) LatestByUser(ctx context.Context, userID string) (*model.ChatSession, error) {
	defer logger.DeferLogDuration("session.LatestByUser", time.Now())()
	s := &model.ChatSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, created_at, updated_at
		 FROM chat_sessions WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, userID,
	).Scan(&s.ID, &s.UserID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.LatestByUser: %w", err)
	}
	return s, nil
}

// UpdateStatus sets the session status and bumps updated_at.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status model.SessionStatus, t time.Time) error {
	defer logger.DeferLogDuration("session.UpdateStatus", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		status, t, id,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch bumps updated_at, keeping "most recent session" ordering in sync
// with message activity.
func (r *SessionRepository) Touch(ctx context.Context, id string, t time.Time) error {
	defer logger.DeferLogDuration("session.Touch", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`, t, id,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Touch: %w", err)
	}
	return nil
}

// ListRecent returns sessions for the admin inbox, newest activity first,
// with the owning member's profile attached.
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]model.ChatSession, error) {
	defer logger.DeferLogDuration("session.ListRecent", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.user_id, s.status, s.created_at, s.updated_at,
		        p.id, p.email, COALESCE(p.first_name,''), COALESCE(p.last_name,''), COALESCE(p.avatar_url,''), p.role
		 FROM chat_sessions s
		 JOIN profiles p ON p.id = s.user_id
		 ORDER BY s.updated_at DESC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListRecent query: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.ChatSession, 0, limit)
	for rows.Next() {
		var s model.ChatSession
		owner := &model.Profile{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
			&owner.ID, &owner.Email, &owner.FirstName, &owner.LastName, &owner.AvatarURL, &owner.Role); err != nil {
			return nil, fmt.Errorf("sessionRepo.ListRecent scan: %w", err)
		}
		s.User = owner
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessionRepo.ListRecent rows: %w", err)
	}
	return sessions, nil
}
