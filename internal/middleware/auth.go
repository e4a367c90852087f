package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/model"
)

// TokenResolver maps an API token to a profile.
type TokenResolver interface {
	GetByToken(ctx context.Context, token string) (*model.Profile, error)
}

// TokenAuth authenticates requests by Bearer token (Authorization header,
// or the token query parameter for WebSocket upgrades where custom headers
// are not available). Puts user id and role into the request context.
func TokenAuth(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			profile, err := resolver.GetByToken(r.Context(), token)
			if err != nil || profile == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, profile.ID)
			ctx = context.WithValue(ctx, RoleKey, profile.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates admin-only routes. Must run after TokenAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRole(r.Context()) != model.RoleAdmin {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
