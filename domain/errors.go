package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed API call.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindTimeout
	KindUnreachable
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindServerError
)

// String returns the kind name used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServerError:
		return "server_error"
	default:
		return "generic"
	}
}

// DefaultMessage is the user-facing fallback when the server supplies none.
func (k ErrorKind) DefaultMessage() string {
	switch k {
	case KindTimeout:
		return "The request timed out. Please try again."
	case KindUnreachable:
		return "Unable to reach the server. Check your connection."
	case KindUnauthorized:
		return "Session expired. Please login again."
	case KindForbidden:
		return "Access forbidden"
	case KindNotFound:
		return "Resource not found"
	case KindConflict:
		return "Conflict occurred"
	case KindServerError:
		return "Server error occurred. Please try again later."
	default:
		return "An error occurred"
	}
}

// APIError is the uniform shape every transport or server failure is
// normalized into before it leaves the HTTP client.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewAPIError builds an APIError, falling back to the kind's default
// message when the server supplied none.
func NewAPIError(kind ErrorKind, status int, message string) *APIError {
	if message == "" {
		message = kind.DefaultMessage()
	}
	return &APIError{Kind: kind, Status: status, Message: message}
}

// Network reports whether the error is a network-class failure (no usable
// response), the only class the profile fetch falls back on.
func (e *APIError) Network() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnreachable
}

// AsAPIError unwraps err into an APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Session errors
var (
	ErrRecordCorrupt = errors.New("persisted session record is corrupt")
)

// Storage errors
var (
	ErrKeyNotFound = errors.New("storage key not found")
)

// Token errors
var (
	ErrTokenMalformed = errors.New("malformed token")
)
