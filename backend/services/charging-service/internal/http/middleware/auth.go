package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/service"
	"chargeway/backend/services/charging-service/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionLoader resolves the session behind a request.
type SessionLoader interface {
	Load(ctx context.Context, r *http.Request) (*session.Data, error)
}

// RequireUser rejects requests without a valid session and stores the session in the context.
func RequireUser(loader SessionLoader, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := loader.Load(r.Context(), r)
			if err != nil {
				if errors.Is(err, session.ErrNotFound) {
					reject(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				logger.Error("load session", zap.Error(err))
				reject(w, http.StatusInternalServerError, "Something went wrong, please try again later.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), data)))
		})
	}
}

// RoleSource loads the stored account behind a session.
type RoleSource interface {
	User(ctx context.Context, id models.ID) (*models.User, error)
}

// RequireAdmin allows sessions holding the admin role whose account is still an admin.
// It must run after RequireUser.
func RequireAdmin(users RoleSource, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, ok := SessionFromContext(r.Context())
			if !ok {
				reject(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if data.Role != models.RoleAdmin {
				reject(w, http.StatusForbidden, "Forbidden")
				return
			}
			user, err := users.User(r.Context(), data.UserID)
			if err != nil {
				if errors.Is(err, service.ErrNotFound) {
					reject(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				logger.Error("load admin", zap.Error(err))
				reject(w, http.StatusInternalServerError, "Something went wrong, please try again later.")
				return
			}
			if user.Role != models.RoleAdmin {
				reject(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, data *session.Data) context.Context {
	return context.WithValue(ctx, sessionKey, data)
}

// SessionFromContext retrieves the session from request context.
func SessionFromContext(ctx context.Context) (*session.Data, bool) {
	data, ok := ctx.Value(sessionKey).(*session.Data)
	return data, ok && data != nil
}

// UserIDFromContext retrieves userID from request context.
func UserIDFromContext(ctx context.Context) (models.ID, bool) {
	data, ok := SessionFromContext(ctx)
	if !ok || data.UserID.IsZero() {
		return "", false
	}
	return data.UserID, true
}

// RateLimitClient keys rate limiting by the authenticated user.
func RateLimitClient(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id.String()
}

func reject(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
