// Package social holds what the social core packages share: the error
// taxonomy, the acting identity, topic names and the keyed lock.
package social

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. Operations wrap these with context; callers classify with
// errors.Is or StatusCode.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
	ErrAlreadyMember = errors.New("already a member")
	ErrInvalidState  = errors.New("invalid state")
	ErrFull          = errors.New("room is full")
	ErrInternal      = errors.New("internal error")
)

// ErrInvalidTarget is an InvalidInput raised when an operation targets the
// actor itself or an identity that does not resolve.
var ErrInvalidTarget = &kindError{msg: "invalid target", kind: ErrInvalidInput}

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Internal wraps an unexpected storage error so it classifies as
// ErrInternal while keeping the cause for logs.
func Internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}

// StatusCode maps an operation error to the HTTP status handlers return.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrFull):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show to a client. Internal errors
// are collapsed so driver details never leak.
func PublicMessage(err error) string {
	if StatusCode(err) == http.StatusInternalServerError {
		return ErrInternal.Error()
	}
	return err.Error()
}
