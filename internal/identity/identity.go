// Package identity resolves a caller credential to a stable user identity.
package identity

import "context"

// Caller is the resolved identity behind a credential.
type Caller struct {
	UserID      string
	DisplayName string
}

// Resolver validates a credential and returns the caller it belongs to.
// Implementations return domain.ErrUnauthenticated for invalid credentials.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Caller, error)
}
