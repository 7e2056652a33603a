package auth

import (
	"context"
	"strings"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID int64
	Role   string
	Name   string
	Email  string
}

type identityContextKey struct{}
type tokenContextKey struct{}

// ContextWithIdentity attaches the authenticated caller to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	id.Role = strings.ToUpper(strings.TrimSpace(id.Role))
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller resolved by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || v.UserID <= 0 {
		return Identity{}, false
	}
	return v, true
}

// ContextWithUser stores a bare (user id, role) identity.
func ContextWithUser(ctx context.Context, userID int64, role string) context.Context {
	return ContextWithIdentity(ctx, Identity{UserID: userID, Role: role})
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return id.UserID, true
}

// RoleFromContext returns the caller's role name, upper-cased.
func RoleFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
