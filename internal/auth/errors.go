package auth

import (
	"errors"
	"fmt"
)

// Engine outcomes. Callers compare with errors.Is.
var (
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidInput        = errors.New("username, email and password are required")
	ErrAccountNotFound     = errors.New("account not found")
)

// ErrStoreUnavailable marks transient persistence failures. It is wrapped
// around the driver error, never retried here.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// ErrLineageMismatch is returned by a RefreshLedger when the presented
// refresh token is not the subject's current one.
var ErrLineageMismatch = errors.New("refresh lineage mismatch")

// UniqueViolationError is returned by a CredentialStore when an insert
// collides with an existing username or email.
type UniqueViolationError struct {
	Field string
}

func (e *UniqueViolationError) Error() string {
	if e.Field == "" {
		return "unique constraint violation"
	}
	return fmt.Sprintf("unique constraint violation on %s", e.Field)
}
