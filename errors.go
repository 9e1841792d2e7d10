package secretkeeper

import (
	"errors"
	"fmt"
)

var (
	// ErrUsernameTaken is returned when registering (or claiming) a username that another account holds
	ErrUsernameTaken = errors.New("username already taken")

	// ErrBadCredential is returned when a password does not match, or the account has no local credential
	ErrBadCredential = errors.New("invalid credentials")

	// ErrNotFound is the parent of all lookup failures
	ErrNotFound = errors.New("not found")

	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
	ErrSecretNotFound  = fmt.Errorf("secret %w", ErrNotFound)

	// ErrProviderAuthFailed is returned when an external provider could not verify the user
	ErrProviderAuthFailed = errors.New("provider authentication failed")

	// ErrProviderLinked is returned when linking a provider identity already held by another account
	ErrProviderLinked = errors.New("provider identity is linked to another account")

	// ErrStoreUnavailable wraps I/O failures from the record store
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrDuplicate is returned by stores when a write violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate record")
)

// StoreError wraps a backend failure as ErrStoreUnavailable while keeping the cause
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Error codes returned in JSON error bodies
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeProviderLinked  = "provider_linked"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternal        = "internal_error"
)

// AuthError is a user facing failure for an auth form
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
