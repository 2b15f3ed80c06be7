package twilio

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the provider's REST API.
type APIError struct {
	StatusCode int
	Code       int    // provider error code, 0 when absent
	Message    string // provider error message
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio: HTTP %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("twilio: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable classifies a dispatch error for the retry executor. Network
// errors and 429/5xx responses are transient; other 4xx responses are client
// errors that retrying cannot fix.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if apiErr.StatusCode >= 500 {
			return true
		}
		return false
	}
	// Transport-level failures (DNS, reset, timeout) surface as plain
	// errors from the HTTP client.
	return true
}
