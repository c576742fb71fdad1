// Package identity wraps the external authentication provider that owns user
// credentials. The engine only ever creates, decorates, and deletes
// identities through this boundary; credential verification stays with the
// provider.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrEmailTaken signals the address is already registered. Registration
	// relies on this as its natural duplicate guard.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrNotFound signals the identity does not exist.
	ErrNotFound = errors.New("identity: user not found")
	// ErrDisabled signals the identity exists but is administratively disabled.
	ErrDisabled = errors.New("identity: user disabled")
	// ErrWeakPassword signals the secret does not meet provider requirements.
	ErrWeakPassword = errors.New("identity: password must be at least 8 characters")
	// ErrRequiresRecentLogin signals the provider demands fresh
	// authentication before a destructive operation. Callers must surface it
	// distinctly; retrying blindly cannot succeed.
	ErrRequiresRecentLogin = errors.New("identity: operation requires recent authentication")
)

// Identity is the provider-owned record for one user.
type Identity struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
	Disabled      bool
}

// Provider is the identity-provider boundary.
type Provider interface {
	Create(ctx context.Context, email, password string) (Identity, error)
	Delete(ctx context.Context, uid string) error
	SetDisplayName(ctx context.Context, uid, displayName string) error
	SendVerificationNotice(ctx context.Context, ident Identity) error
}
