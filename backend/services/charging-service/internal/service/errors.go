package service

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks malformed input or a business rule violation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing station, ticket, vehicle or user.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an ownership violation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks an exhausted connector pool or a lost race.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated marks failed credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInternal marks a datastore failure. Its cause is logged, never returned to clients.
	ErrInternal = errors.New("internal error")
)

// Error carries a client-safe message next to its kind and optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func internal(message string, cause error) *Error {
	return &Error{Kind: ErrInternal, Message: message, Err: cause}
}

// StatusCode maps an error onto the HTTP status it should produce.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client.
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && !errors.Is(svcErr.Kind, ErrInternal) {
		return svcErr.Message
	}
	if StatusCode(err) == http.StatusInternalServerError {
		return "Something went wrong, please try again later."
	}
	return err.Error()
}
