package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all attempts failed with retriable errors.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrUnauthorized is wrapped by errors for 401 and 403 responses.
	ErrUnauthorized = errors.New("catalog rejected credentials")

	// ErrMalformedResponse is returned when a 2xx body is not JSON.
	ErrMalformedResponse = errors.New("malformed catalog response")
)

// ErrorClass is a coarse classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError describes a failed call to the catalog API.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an ErrorClass; "" means success.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// statusError builds the error for a non-2xx response.
func statusError(status int, body string) *UpstreamError {
	e := &UpstreamError{
		StatusCode: status,
		ErrorClass: classifyStatus(status),
		Message:    http.StatusText(status),
	}
	if body != "" {
		e.Message += ": " + body
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		e.Err = ErrUnauthorized
	}
	return e
}

// shouldRetry reports whether a failure of this class is worth repeating.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// 4xx responses will not change on repeat
		return false
	}
}
