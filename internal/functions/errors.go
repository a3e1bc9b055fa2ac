package functions

import (
	"errors"
	"fmt"
)

// Code is the category of a callable failure.
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeInternal        Code = "INTERNAL"
)

// Error is a categorized callable failure. Its message is shown to clients.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func invalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

func unauthenticated() *Error {
	return &Error{Code: CodeUnauthenticated, Message: "Must be logged in"}
}

func notFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func alreadyExists(msg string, cause error) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg, cause: cause}
}

func internal(prefix string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf("%s: %v", prefix, cause), cause: cause}
}

// AsError classifies any error. Uncategorized errors become internal.
func AsError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return internal("internal error", err)
}
