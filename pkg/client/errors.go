package client

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/skai/pkg/query"
)

// Common errors returned by the client.
var (
	// ErrValidation is matched by every input validation failure. No network
	// call is attempted for these.
	ErrValidation = query.ErrInvalidQuery

	// ErrFetchFailed is matched by every *FetchError.
	ErrFetchFailed = errors.New("failed to fetch astronomy events")

	// ErrCancelled is returned when the caller abandoned the request. It is
	// not a failure and should never be shown to a user.
	ErrCancelled = errors.New("request cancelled")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents connection and transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassStatus represents non-2xx responses from the proxy service.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassDecode represents bodies that are not valid JSON.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassProvider represents failures reported by the AI provider.
	ErrorClassProvider ErrorClass = "provider"
)

// FetchError represents a failed upstream fetch with additional context.
type FetchError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// UserMessage returns the text shown to end users for err, or "" when err is
// nil or a cancellation.
func UserMessage(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrCancelled):
		return ""
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "Failed to fetch astronomy events. Please try again."
	}
}
