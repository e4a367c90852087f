package middleware

import (
	"context"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
)

// GetUserID returns the user id from the context (set by TokenAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetRole returns the role from the context (set by TokenAuth).
func GetRole(ctx context.Context) model.Role {
	v, _ := ctx.Value(RoleKey).(model.Role)
	return v
}
