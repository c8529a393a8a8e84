package auth

import (
	"context"
	"time"
)

// CredentialStore is the slice of persistence the engine depends on.
//
// Find* return ErrAccountNotFound when no row matches. Create returns a
// *UniqueViolationError when the username or email is already taken; the
// store's unique indexes decide, so concurrent registrations are safe.
// Transient failures wrap ErrStoreUnavailable.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, account NewAccount) (Account, error)
}

// RefreshLedger remembers the last refresh token id issued to each
// subject, which turns rotation into single-use refresh tokens.
type RefreshLedger interface {
	// Record makes jti the subject's current lineage, replacing any other.
	Record(ctx context.Context, subject, jti string, expiresAt time.Time) error
	// Rotate swaps currentJTI for nextJTI atomically. It returns
	// ErrLineageMismatch if currentJTI is not the subject's current id.
	Rotate(ctx context.Context, subject, currentJTI, nextJTI string, expiresAt time.Time) error
	// Revoke forgets the subject's lineage. Revoking nothing is not an error.
	Revoke(ctx context.Context, subject string) error
}
