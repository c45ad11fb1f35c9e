package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	// UserContextKey is the context key for authenticated user
	UserContextKey contextKey = "authenticated_user"
)

var (
	// ErrNoUserInContext is returned when no user is found in context
	ErrNoUserInContext = errors.New("no authenticated user in context")
)

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext extracts authenticated user from request context
func GetUserFromContext(ctx context.Context) (*UserInfo, error) {
	val := ctx.Value(UserContextKey)
	if val == nil {
		return nil, ErrNoUserInContext
	}

	user, ok := val.(*UserInfo)
	if !ok {
		return nil, ErrNoUserInContext
	}

	return user, nil
}
