package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// networkError wraps failures that never produced an HTTP response.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return "network error: " + e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// IsNetworkError reports whether err means the server could not be reached.
func IsNetworkError(err error) bool {
	var ne *networkError
	return errors.As(err, &ne)
}

// IsUnavailable reports whether err means the server could not serve the
// request at all: a transport failure or a 5xx answer, typically from a
// proxy in front of a server that is down.
func IsUnavailable(err error) bool {
	return IsNetworkError(err) || StatusOf(err) >= http.StatusInternalServerError
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// parseError reads {"error": "...", "fields": [{"field", "message"}]}.
// Bodies that are not JSON keep the status text only.
func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if !gjson.ValidBytes(body) {
		return apiErr
	}
	apiErr.Message = gjson.GetBytes(body, "error").String()
	gjson.GetBytes(body, "fields").ForEach(func(_, f gjson.Result) bool {
		if apiErr.Fields == nil {
			apiErr.Fields = make(map[string]string)
		}
		apiErr.Fields[f.Get("field").String()] = f.Get("message").String()
		return true
	})
	return apiErr
}
