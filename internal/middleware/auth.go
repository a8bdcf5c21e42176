// Package middleware contains HTTP middleware for the coaching API.
//
// Everything here is a func(http.Handler) http.Handler, composed with Stack.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/handler"
)

// UserLoader loads the account behind a verified token.
type UserLoader interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// AuthMiddleware authenticates requests carrying a bearer token. Tokens are
// checked on every request; there is no server-side session.
type AuthMiddleware struct {
	verifier *auth.Verifier
	users    UserLoader
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier *auth.Verifier, users UserLoader, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// WithUser loads the user behind the Authorization bearer token, if any, and
// stores it in the request context. It always calls the next handler; pair it
// with RequireUser for protected routes.
//
// The user can be retrieved in handlers using:
//
//	user := auth.GetUser(r.Context())
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("bearer token rejected", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		// Inactive or deleted accounts are treated as anonymous.
		user, err := m.users.GetUser(r.Context(), identity.UserID)
		if err != nil {
			m.logger.Debug("token user rejected", "user_id", identity.UserID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		recordUser(r.Context(), user.ID.String())
		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// RequireUser responds 401 unless WithUser stored a user in the context.
// It must run after WithUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole responds 403 unless the authenticated user holds one of roles.
// Use after RequireUser.
func (m *AuthMiddleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.GetUser(r.Context())
			if user == nil {
				m.logger.Error("RequireRole called without user in context")
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			handler.ForbiddenResponse(w, r, m.logger)
		})
	}
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/conversations", stack(conversationsHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
