package strava

import (
	"fmt"
	"net/http"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// APIError represents an error response from the Strava API.
type APIError struct {
	StatusCode int
	Message    string
	RateLimit  string
	RateUsage  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the shared error kinds.
func (e *APIError) Unwrap() error {
	switch {
	case e.IsUnauthorized():
		return ride.ErrAuthentication
	case e.IsRateLimited():
		return ride.ErrRateLimited
	case e.IsServerError():
		return ride.ErrNetwork
	default:
		return nil
	}
}

// IsUnauthorized returns true if the error is a 401 Unauthorized response.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsNotFound returns true if the error is a 404 Not Found response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRateLimited returns true if the error is a 429 Too Many Requests response.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true for 5xx responses.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// RateLimitError is returned once rate-limited requests have used up every
// retry. It matches ride.ErrRateLimited.
type RateLimitError struct {
	Attempts int
	Limit    string
	Usage    string
	Err      error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("strava rate limit exceeded after %d attempts", e.Attempts)
	if e.Limit != "" || e.Usage != "" {
		msg += fmt.Sprintf(" (limit %s, usage %s)", e.Limit, e.Usage)
	}
	return msg
}

func (e *RateLimitError) Unwrap() []error {
	return []error{ride.ErrRateLimited, e.Err}
}
