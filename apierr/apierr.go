// Package apierr defines the gateway's error taxonomy and its mapping
// onto HTTP status codes and response bodies.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Class enumerates the error categories from the gateway's error
// handling design: input validation, authentication, authorization,
// rate limiting, dependency failure, timeout, internal, and policy
// violation.
type Class string

const (
	ClassValidation     Class = "validation"
	ClassAuthentication Class = "authentication"
	ClassAuthorization  Class = "authorization"
	ClassRateLimited    Class = "rate_limited"
	ClassDependency     Class = "dependency_failure"
	ClassTimeout        Class = "timeout"
	ClassInternal       Class = "internal"
	ClassPolicy         Class = "policy_violation"
)

// Error is a typed API error carrying the class, a client-safe message,
// and the status it maps to.
type Error struct {
	Class   Class
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func new_(class Class, status int, msg string, cause error) *Error {
	return &Error{Class: class, Status: status, Message: msg, cause: cause}
}

func Validation(msg string) *Error         { return new_(ClassValidation, http.StatusUnprocessableEntity, msg, nil) }
func Unauthorized(msg string) *Error       { return new_(ClassAuthentication, http.StatusUnauthorized, msg, nil) }
func Forbidden(msg string) *Error          { return new_(ClassAuthorization, http.StatusForbidden, msg, nil) }
func RateLimited(msg string) *Error        { return new_(ClassRateLimited, http.StatusTooManyRequests, msg, nil) }
func Dependency(msg string, err error) *Error { return new_(ClassDependency, http.StatusServiceUnavailable, msg, err) }
func Timeout(msg string) *Error            { return new_(ClassTimeout, http.StatusRequestTimeout, msg, nil) }
func Internal(msg string, err error) *Error   { return new_(ClassInternal, http.StatusInternalServerError, msg, err) }
func Policy(msg string) *Error             { return new_(ClassPolicy, http.StatusForbidden, msg, nil) }
func TooLarge(msg string) *Error           { return new_(ClassValidation, http.StatusRequestEntityTooLarge, msg, nil) }
func UnsupportedMedia(msg string) *Error   { return new_(ClassValidation, http.StatusUnsupportedMediaType, msg, nil) }
func BadRequest(msg string) *Error         { return new_(ClassValidation, http.StatusBadRequest, msg, nil) }

// body is the wire shape of every error response.
type body struct {
	Error     string `json:"error"`
	StatusCode int    `json:"status_code"`
	RequestID string `json:"request_id,omitempty"`
}

// Write serializes the error as the documented JSON body and sets the
// matching HTTP status. Internal details (the wrapped cause) never
// reach the client.
func Write(w http.ResponseWriter, requestID string, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(body{
		Error:      err.Message,
		StatusCode: err.Status,
		RequestID:  requestID,
	})
}

// As extracts an *Error from err, or wraps it as an internal error if
// it isn't already typed.
func As(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal("internal error", err)
}
