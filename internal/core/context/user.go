// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"opname/internal/core/security"
)

// UserContext contains authenticated user information.
// There is no ambient "logged in" state anywhere in the service:
// identity always travels through the request context.
type UserContext struct {
	UserID       string
	Name         string
	Email        string
	Role         security.Role
	BranchID     string // empty for roles not tied to one branch
	Capabilities security.CapabilitySet
	SessionID    string
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

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetBranchID returns the user's branch from context or empty string.
func GetBranchID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.BranchID
	}
	return ""
}

// HasCapability checks if the context user holds a capability.
func HasCapability(ctx context.Context, c security.Capability) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return u.Capabilities.Has(c)
}
