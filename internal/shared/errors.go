package shared

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates no actor was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidInput marks business-rule violations in otherwise well formed input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict marks requests that clash with the current state of a record.
	ErrConflict = errors.New("conflict")
	// ErrUnprocessable marks well formed requests whose posting rules cannot be satisfied.
	ErrUnprocessable = errors.New("unprocessable")
)

// ClassError is a domain sentinel that keeps its own message while matching one
// of the shared error classes through errors.Is.
type ClassError struct {
	msg   string
	class error
}

// NewClassError returns a sentinel reading msg and classified as class.
func NewClassError(class error, msg string) error {
	return &ClassError{msg: msg, class: class}
}

func (e *ClassError) Error() string { return e.msg }

// Unwrap exposes the class.
func (e *ClassError) Unwrap() error { return e.class }

// UserError marks an error whose message is safe to show to end users.
type UserError interface {
	error
	UserMessage() string
}

// UserSafeMessage returns text that can be flashed back to the user.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue UserError
	if errors.As(err, &ue) {
		return ue.UserMessage()
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request was cancelled, please try again."
	case errors.Is(err, ErrNotFound):
		return "Record not found."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action."
	}
	return err.Error()
}
