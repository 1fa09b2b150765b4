// Package auth issues and verifies access tokens and provides the request
// context plumbing for authenticated identity.
package auth

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity contains the verified token details we care about.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// WithIdentity stores the authenticated identity in a context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity from a context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}
