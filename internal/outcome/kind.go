package outcome

import "errors"

// Kind is the tagged result every engine operation resolves to.
type Kind int

const (
	OK Kind = iota
	AuthRequired
	Cancelled
	Conflict
	Validation
	NotFound
	Network
	Unknown
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case AuthRequired:
		return "auth_required"
	case Cancelled:
		return "cancelled"
	case Conflict:
		return "conflict"
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Network:
		return "network"
	default:
		return "unknown"
	}
}

// Classify reduces an error to its Kind. Cancellation is checked first so a
// superseded request that also failed is still ignored.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrCancelled):
		return Cancelled
	case errors.Is(err, ErrAuthRequired):
		return AuthRequired
	case errors.Is(err, ErrConflict):
		return Conflict
	case errors.Is(err, ErrValidation):
		return Validation
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrNetwork):
		return Network
	default:
		return Unknown
	}
}

// Silent reports whether the error must be discarded without being shown.
func Silent(err error) bool {
	return Classify(err) == Cancelled
}

// Message returns the user-visible text for an error. Server-provided
// messages take precedence for conflicts and validation failures.
func Message(err error) string {
	var apiErr *APIError
	kind := Classify(err)
	if (kind == Conflict || kind == Validation) && errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	switch kind {
	case OK, Cancelled:
		return ""
	case AuthRequired:
		return "please log in to continue"
	case Conflict:
		return "the server state changed, refresh and try again"
	case Validation:
		return "the request was rejected"
	case NotFound:
		return "not found"
	case Network:
		return "network error, try again"
	default:
		return "unexpected error"
	}
}
