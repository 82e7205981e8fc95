// Package domain provides the backend adapter contract and the canonical
// error taxonomy shared across the gateway.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrClientClosed signals that the downstream client closed the connection
// mid-stream. It is a cooperative cancellation outcome, not a failure: the
// caller releases the upstream connection and surfaces nothing.
var ErrClientClosed = errors.New("client closed connection")

// ConfigurationError indicates a bad registry entry or a missing credential.
// It is fatal at load time or at first use of the offending model.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ErrConfiguration creates a configuration error.
func ErrConfiguration(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ModelNotFoundError indicates the requested model is not in the registry
// whitelist. Available always carries every configured name so the client
// can self-correct.
type ModelNotFoundError struct {
	Model     string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = ""
		for i, name := range e.Available {
			if i > 0 {
				available += ", "
			}
			available += name
		}
	}
	return fmt.Sprintf("Model '%s' is not configured. Available models: %s", e.Model, available)
}

// UpstreamError wraps a non-success response from a backend. Status is the
// upstream HTTP status; Body is the raw upstream error body, kept verbatim
// for diagnosability.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Body)
}

// StreamFailure classifies an error raised mid-stream. When the request
// context is already cancelled the real cause is the client going away, so
// the failure collapses to ErrClientClosed; anything else passes through.
func StreamFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrClientClosed
	}
	return err
}

// ClientStatus returns the HTTP status to surface to the client. Upstream
// authentication failures become a generic 400: the client authenticates to
// the gateway, never to the upstream, so a leaked 401 would be misleading.
func (e *UpstreamError) ClientStatus() int {
	if e.Status == http.StatusUnauthorized {
		return http.StatusBadRequest
	}
	return e.Status
}
