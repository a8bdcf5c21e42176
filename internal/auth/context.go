// Package auth verifies bearer tokens and carries the authenticated user
// through request contexts. It depends only on domain, so middleware,
// handlers and the relay can all import it.
package auth

import (
	"context"

	"github.com/coachly/coachly/internal/domain"
)

type userKey struct{}

// SetUser returns a copy of ctx carrying user.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// GetUser returns the user stored by SetUser, or nil for anonymous requests.
func GetUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey{}).(*domain.User)
	return user
}
