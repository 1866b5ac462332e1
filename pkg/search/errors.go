package search

import "errors"

var (
	// ErrMissingQuery is returned when the product query is empty.
	ErrMissingQuery = errors.New("parameter 'produto' is required")

	// ErrServiceUnavailable wraps failures to obtain an access token.
	ErrServiceUnavailable = errors.New("catalog service unavailable")
)
