package catalog

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is on the typed errors below.
var (
	ErrAuth = errors.New("catalog authentication failed")
	ErrAPI  = errors.New("catalog api request failed")
)

// AuthError reports missing or rejected provider credentials.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("authenticate with catalog (status %d): %s", e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("authenticate with catalog: %v", e.Err)
	default:
		return ErrAuth.Error()
	}
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuth, e.Err}
	}
	return []error{ErrAuth}
}

// APIError reports a non-success response from a search or detail endpoint.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("%s request: %v", e.Endpoint, e.Err)
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAPI, e.Err}
	}
	return []error{ErrAPI}
}
