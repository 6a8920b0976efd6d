package auth

import (
	"collab-realtime/domain"
	"collab-realtime/errors"
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

// bearer extracts the token from the Authorization header, or from the
// "token" query parameter browsers use for websocket upgrades.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Identify returns the authenticated user of a request, nil when it carries no token.
// A token that is present but invalid is an error.
func (a *Authenticator) Identify(r *http.Request) (*domain.UserID, error) {
	tokenStr := bearer(r)
	if tokenStr == "" {
		return nil, nil
	}
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	userID, err := domain.ParseUserID(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	return &userID, nil
}

// RequireRole lets a request through when it carries a JWT with role, or an
// X-Api-Key matching the configured emitter key hash.
func (a *Authenticator) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get("X-Api-Key"); key != "" && a.emitKeyHash != "" {
				if ok, err := CompareKey(key, a.emitKeyHash); err == nil && ok {
					ctx := context.WithValue(r.Context(), RolesKey, []string{role})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				http.Error(w, errors.ErrUnauthorized.Error(), http.StatusUnauthorized)
				return
			}

			tokenStr := bearer(r)
			if tokenStr == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}
			claims, err := a.ValidateToken(tokenStr)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			if !claims.HasRole(role) {
				http.Error(w, errors.ErrForbidden.Error(), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, RolesKey, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
