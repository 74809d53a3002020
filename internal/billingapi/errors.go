package billingapi

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrorKindRateLimited         ErrorKind = "rate_limited"
	ErrorKindServerError         ErrorKind = "server_error"
	ErrorKindConnection          ErrorKind = "connection"
	ErrorKindInvalidRequest      ErrorKind = "invalid_request"
	ErrorKindAuthentication      ErrorKind = "authentication"
	ErrorKindPermission          ErrorKind = "permission"
	ErrorKindCardDeclined        ErrorKind = "card_declined"
	ErrorKindIdempotencyConflict ErrorKind = "idempotency_conflict"
	ErrorKindNotFound            ErrorKind = "not_found"
)

// APIError is the classified form of any failure talking to the billing api.
// Transport failures carry the underlying error for unwrapping.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("billing api error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("billing api error (%s): %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is a transient upstream condition.
// Everything else propagates to the caller on first occurrence.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case ErrorKindRateLimited, ErrorKindServerError, ErrorKindConnection:
		return true
	}
	return false
}

func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == ErrorKindNotFound
}

func retryAfterOf(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

func errorKindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrorKindConnection
}

// classifyStatus maps an http status and remote error type to a kind.  The
// remote api reports 424 when one of its own dependencies failed; that is as
// transient as any other 5xx.
func classifyStatus(statusCode int, errorType string) ErrorKind {
	switch statusCode {
	case 401:
		return ErrorKindAuthentication
	case 402:
		return ErrorKindCardDeclined
	case 403:
		return ErrorKindPermission
	case 404:
		return ErrorKindNotFound
	case 409:
		return ErrorKindIdempotencyConflict
	case 429:
		return ErrorKindRateLimited
	case 424, 500, 502, 503, 504:
		return ErrorKindServerError
	}

	switch errorType {
	case "rate_limit_error":
		return ErrorKindRateLimited
	case "authentication_error":
		return ErrorKindAuthentication
	case "card_error":
		return ErrorKindCardDeclined
	case "idempotency_error":
		return ErrorKindIdempotencyConflict
	case "api_error":
		return ErrorKindServerError
	}

	return ErrorKindInvalidRequest
}
