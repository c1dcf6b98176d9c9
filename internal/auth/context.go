// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating the username via context

package auth

import (
	"context"
)

// identityKey is the key type for storing the authenticated username in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the authenticated username attached.
func WithIdentity(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, identityKey{}, username)
}

// FromContext retrieves the authenticated username from the context,
// returning the empty string if not present.
func FromContext(ctx context.Context) string {
	username, _ := ctx.Value(identityKey{}).(string)
	return username
}
