package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the control surface caller is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSyncInProgress indicates a sweep is already running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrProviderNotFound indicates no provider is registered under the id
	ErrProviderNotFound = errors.New("provider not found")

	// ErrOAuthNotConfigured indicates no OAuth config was registered for a provider
	ErrOAuthNotConfigured = errors.New("oauth not configured")

	// ErrInvalidState indicates the OAuth redirect carried a bad or expired state
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrDuplicateItem indicates a provider returned the same item id twice
	ErrDuplicateItem = errors.New("duplicate item id")
)

// ConfigurationError reports a provider that cannot be synced until the user
// changes its configuration. It is never retried.
type ConfigurationError struct {
	ProviderID string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s is not configured: %s", e.ProviderID, e.Reason)
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(providerID, reason string) *ConfigurationError {
	return &ConfigurationError{ProviderID: providerID, Reason: reason}
}

// AuthenticationError reports a missing or rejected credential, or an
// interactive flow the user cancelled.
type AuthenticationError struct {
	ProviderID string
	Cancelled  bool
	Err        error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.Cancelled:
		return fmt.Sprintf("authentication for %s was cancelled", e.ProviderID)
	case e.Err != nil:
		return fmt.Sprintf("authentication for %s failed: %v", e.ProviderID, e.Err)
	default:
		return fmt.Sprintf("provider %s is not authenticated", e.ProviderID)
	}
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NewAuthenticationError creates an AuthenticationError wrapping err (may be nil).
func NewAuthenticationError(providerID string, err error) *AuthenticationError {
	return &AuthenticationError{ProviderID: providerID, Err: err}
}

// NetworkError reports a failed remote call. StatusCode is 0 for transport failures.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RetryExhaustedError is the terminal failure of one failure episode.
type RetryExhaustedError struct {
	ProviderID string
	Attempts   int
	Last       error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("sync for %s failed after %d retries: %v", e.ProviderID, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// IsCancelled reports whether err is a user-cancelled authentication.
func IsCancelled(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr) && authErr.Cancelled
}

// IsRetryable reports whether the scheduler may retry after err.
// Configuration and authentication failures need user action first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	var exhausted *RetryExhaustedError
	return !errors.As(err, &exhausted)
}
