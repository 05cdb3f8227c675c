// Package middleware provides request authentication for the integration API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/romashka-ai/integration-hub/internal/db"
	"gorm.io/gorm"
)

type contextKey string

const userIDKey contextKey = "userId"

// UserID returns the authenticated user id, or empty string when the request
// was not authenticated.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// APIKeyAuth resolves the bearer credential to a user and injects the user id
// into the request context. Requests without a valid key get a 401.
func APIKeyAuth(database *gorm.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var key string
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				key = strings.TrimPrefix(authHeader, "Bearer ")
			}
			if key == "" {
				key = r.Header.Get("x-api-key")
			}

			if key != "" {
				if userID := db.UserForAPIKey(database, key); userID != "" {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "unauthorized"}}`))
		})
	}
}
