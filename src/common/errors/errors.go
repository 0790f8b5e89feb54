// Package errors provides the structured error type used across shipyard.
// Errors carry a domain, a code and the HTTP status the API should answer with,
// and they wrap an optional cause so errors.Is and errors.As keep working.
package errors

import (
	"errors"
	"fmt"
)

// Code represents a unique error code within a domain
type Code string

// Domain represents an error domain (e.g., "version", "build", "registry")
type Domain string

// Error domains
const (
	DomainAuth       Domain = "auth"
	DomainProject    Domain = "project"
	DomainVersion    Domain = "version"
	DomainBuild      Domain = "build"
	DomainRegistry   Domain = "registry"
	DomainStorage    Domain = "storage"
	DomainDatabase   Domain = "database"
	DomainValidation Domain = "validation"
	DomainInternal   Domain = "internal"
)

// Error represents a structured error with domain, code, and HTTP status
type Error struct {
	Domain     Domain `json:"domain"`
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`

	cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Code, e.Message)
}

// Reason returns the "domain.code" identifier used in API responses
func (e *Error) Reason() string {
	return string(e.Domain) + "." + string(e.Code)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target has the same domain and code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}

// WithCause returns a copy of the error with the underlying cause attached
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// WithMessagef returns a copy of the error with a formatted message
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// New creates a new Error
func New(domain Domain, code Code, httpStatus int, message string) *Error {
	return &Error{
		Domain:     domain,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// GetHTTPStatus returns the HTTP status code for an error, 500 for foreign errors
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return 500
}

// Message returns the human readable message of the first *Error in the chain,
// or err.Error() for foreign errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Is delegates to errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
