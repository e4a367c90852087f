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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.ChatMessage) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, session_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, m.SenderID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.ChatMessage{}
	var pid, email, first, last, avatar, role *string
	err := r.pool.QueryRow(ctx,
		`SELECT m.id, m.session_id, m.sender_id, m.content, m.created_at,
		        p.id, p.email, COALESCE(p.first_name,''), COALESCE(p.last_name,''), COALESCE(p.avatar_url,''), p.role
		 FROM messages m
		 LEFT JOIN profiles p ON p.id = m.sender_id
		 WHERE m.id = $1`, id,
	).Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Content, &m.CreatedAt,
		&pid, &email, &first, &last, &avatar, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	m.Sender = senderProfile(pid, email, first, last, avatar, role)
	return m, nil
}

// ListBySession returns all messages of a session ordered by created_at
// ascending, with sender profiles joined. System rows (sender_id "system")
// get no profile by design.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	defer logger.DeferLogDuration("msg.ListBySession", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.session_id, m.sender_id, m.content, m.created_at,
		        p.id, p.email, COALESCE(p.first_name,''), COALESCE(p.last_name,''), COALESCE(p.avatar_url,''), p.role
		 FROM messages m
		 LEFT JOIN profiles p ON p.id = m.sender_id
		 WHERE m.session_id = $1
		 ORDER BY m.created_at ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListBySession query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.ChatMessage, 0, 32)
	for rows.Next() {
		var m model.ChatMessage
		var pid, email, first, last, avatar, role *string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Content, &m.CreatedAt,
			&pid, &email, &first, &last, &avatar, &role); err != nil {
			return nil, fmt.Errorf("msgRepo.ListBySession scan: %w", err)
		}
		m.Sender = senderProfile(pid, email, first, last, avatar, role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListBySession rows: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	defer logger.DeferLogDuration("msg.CountBySession", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = $1`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.CountBySession: %w", err)
	}
	return n, nil
}

// senderProfile builds a Profile from LEFT JOIN columns; nil when the join
// produced no row (system sender or deleted profile).
func senderProfile(id, email, first, last, avatar, role *string) *model.Profile {
	if id == nil {
		return nil
	}
	p := &model.Profile{ID: *id}
	if email != nil {
		p.Email = *email
	}
	if first != nil {
		p.FirstName = *first
	}
	if last != nil {
		p.LastName = *last
	}
	if avatar != nil {
		p.AvatarURL = *avatar
	}
	if role != nil {
		p.Role = model.Role(*role)
	}
	return p
}
