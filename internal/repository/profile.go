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

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByID", time.Now())()
	p := &model.Profile{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(avatar_url,''), role
		 FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.AvatarURL, &p.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profileRepo.GetByID: %w", err)
	}
	return p, nil
}

// GetByToken resolves an API token to a profile (auth middleware).
func (r *ProfileRepository) GetByToken(ctx context.Context, token string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByToken", time.Now())()
	p := &model.Profile{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(avatar_url,''), role
		 FROM profiles WHERE api_token = $1`, token,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.AvatarURL, &p.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profileRepo.GetByToken: %w", err)
	}
	return p, nil
}

// ListAdminIDs returns the ids of all admin profiles (push fanout targets).
func (r *ProfileRepository) ListAdminIDs(ctx context.Context) ([]string, error) {
	defer logger.DeferLogDuration("profile.ListAdminIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM profiles WHERE role = 'admin'`,
	)
	if err != nil {
		return nil, fmt.Errorf("profileRepo.ListAdminIDs query: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("profileRepo.ListAdminIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
