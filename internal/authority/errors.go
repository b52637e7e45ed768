package authority

import (
	"fmt"
	"strings"
)

// APIError is an error envelope returned by the balance authority.
type APIError struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authority: %s: %s", e.ErrorType, e.Message)
}

// Error types reported by the balance authority.
const (
	ErrTypeInsufficientBalance = "insufficientBalance"
	ErrTypeAccountNotFound     = "accountNotFound"
	ErrTypeDuplicateKey        = "duplicateKey"
)

// IsInsufficientBalance reports a declined debit.
func (e *APIError) IsInsufficientBalance() bool {
	return strings.Contains(e.ErrorType, ErrTypeInsufficientBalance)
}

// IsNotFound reports an unknown account.
func (e *APIError) IsNotFound() bool {
	return strings.Contains(e.ErrorType, ErrTypeAccountNotFound)
}

// IsDuplicateKey reports an idempotency key the authority already applied.
func (e *APIError) IsDuplicateKey() bool {
	return strings.Contains(e.ErrorType, ErrTypeDuplicateKey)
}

// HTTPError represents an unexpected HTTP status from the authority.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("authority: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limits (429) and server errors (5xx).
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AuthError indicates the access token was refused.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authority: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
}
