package outcome

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired indicates an authenticated action was attempted without a valid session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrSessionExpired indicates the stored credential has expired. It matches ErrAuthRequired.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrAuthRequired)
	// ErrCancelled indicates the request was superseded or cancelled and its result must be ignored.
	ErrCancelled = errors.New("request cancelled")
	// ErrConflict indicates the server rejected a mutation because of a state mismatch.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates the server rejected the request payload.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNetwork indicates a transport failure, timeout or unavailable server.
	ErrNetwork = errors.New("network error")
)

// APIError carries the status code and message returned by the backing service.
type APIError struct {
	Status  int
	Message string
	kind    error
}

// NewAPIError builds an APIError that unwraps to the provided kind sentinel.
func NewAPIError(status int, message string, kind error) *APIError {
	return &APIError{Status: status, Message: message, kind: kind}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.kind, e.Status)
	}
	return fmt.Sprintf("%v (status %d): %s", e.kind, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// FromContext maps a context error onto the taxonomy. Deadline expiry is a
// network failure; explicit cancellation means the result is stale.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	default:
		return err
	}
}
