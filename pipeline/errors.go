package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
)

// NetworkError means no response arrived: the backend could not be reached,
// the connection dropped, or the context ended first.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a response with a non-2xx status. Body is kept verbatim.
type HTTPError struct {
	Method  string
	URL     string
	Status  int
	Body    []byte
	Message string
}

// Error returns the backend's own message when it sent one, so callers can show it as is.
func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

func (e *HTTPError) Is(target error) bool {
	return e.Unauthorized() && target == apperrors.ErrNotAuthenticated
}

// messageFields are tried in order when pulling a human readable message out of an error body.
var messageFields = []string{"message", "error_description", "error", "detail"}

func newHTTPError(method, url string, status int, body []byte) *HTTPError {
	return &HTTPError{
		Method:  method,
		URL:     url,
		Status:  status,
		Body:    body,
		Message: errorMessage(status, body),
	}
}

func errorMessage(status int, body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, name := range messageFields {
			if msg, ok := fields[name].(string); ok && strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("http status %d", status)
}

// AsHTTPError unwraps err to an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if apperrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// AsNetworkError unwraps err to a *NetworkError.
func AsNetworkError(err error) (*NetworkError, bool) {
	var netErr *NetworkError
	if apperrors.As(err, &netErr) {
		return netErr, true
	}
	return nil, false
}

// IsUnauthorized reports whether err carries a 401 response.
func IsUnauthorized(err error) bool {
	httpErr, ok := AsHTTPError(err)
	return ok && httpErr.Unauthorized()
}
