// Package context carries the caller's identity and trace ids through a
// request.
package context

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoUser is returned by UserID for an anonymous context.
var ErrNoUser = errors.New("no authenticated user")

// UserContext is the authenticated caller as asserted by the bearer token.
// It carries identity only: organization and system-owner status are read
// from the user record, never from the token.
type UserContext struct {
	UserID    string
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// UserID parses the caller's id.
func UserID(ctx context.Context) (uuid.UUID, error) {
	u := GetUser(ctx)
	if u == nil {
		return uuid.Nil, ErrNoUser
	}
	id, err := uuid.Parse(u.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user id %q: %w", u.UserID, err)
	}
	return id, nil
}
