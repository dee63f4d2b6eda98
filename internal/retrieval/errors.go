package retrieval

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned when the connection cannot produce a valid access token.
var ErrNoToken = errors.New("no valid access token")

// HTTPError is a non-2xx response from the data source.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s for url: %s", e.Status, e.URL)
}

func (e *HTTPError) HTTPStatus() int   { return e.StatusCode }
func (e *HTTPError) ErrorType() string { return "HTTPError" }

// ValidationError rejects a request before anything is sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string     { return e.Reason }
func (e *ValidationError) ErrorType() string { return "ValidationError" }

// AuthError means the entity is no longer connected to the data source.
type AuthError struct {
	EntityID string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("entity %s is no longer connected: %v", e.EntityID, e.Err)
	}
	return fmt.Sprintf("entity %s is no longer connected", e.EntityID)
}

func (e *AuthError) Unwrap() error     { return e.Err }
func (e *AuthError) ErrorType() string { return "AuthError" }

// MalformedResponseError is a 2xx response that does not have the expected shape.
type MalformedResponseError struct {
	URL    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.URL, e.Reason)
}

func (e *MalformedResponseError) ErrorType() string { return "MalformedResponse" }
