// Package provider holds the shared machinery for remote AI providers:
// the error taxonomy, retry policy and circuit breaker used by both the
// detection and vision clients.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error represents a failed provider call. Retryable distinguishes transient
// conditions (timeouts, 429, 5xx) from permanent ones (auth, bad request).
type Error struct {
	Provider  string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s provider: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewHTTPError classifies an HTTP status into a provider error.
func NewHTTPError(name string, status int, err error) *Error {
	retryable := status == 408 || status == 429 || status >= 500
	return &Error{Provider: name, Status: status, Retryable: retryable, Err: err}
}

// NewTransportError classifies a transport-level failure. Network errors and
// deadline expiries are retryable; a caller cancellation is not.
func NewTransportError(name string, err error) *Error {
	retryable := true
	if errors.Is(err, context.Canceled) {
		retryable = false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		retryable = netErr.Timeout() || retryable
	}
	return &Error{Provider: name, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}
