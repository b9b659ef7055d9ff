package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// BackendError is a classified failure from a backend call. Transient
// failures (timeouts, rate limits, 5xx) are retried by the orchestrator;
// fatal ones (bad credentials, rejected requests) are not.
type BackendError struct {
	Backend   string
	Status    int
	Transient bool
	Err       error
}

func (e *BackendError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s backend error (HTTP %d): %v", e.Backend, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s backend error: %v", e.Backend, kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}

// transientStatus classifies an HTTP status code.
func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// classify wraps err for the given backend, deciding retryability from
// the HTTP status when one is known and from the error shape otherwise.
// Context cancellation passes through unwrapped so callers can see it.
func classify(backend string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	transient := false
	switch {
	case status != 0:
		transient = transientStatus(status)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			transient = true
		}
	}
	return &BackendError{Backend: backend, Status: status, Transient: transient, Err: err}
}
