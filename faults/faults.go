// Package faults defines the error taxonomy shared by the connection layer.
package faults

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying connection-layer failures. Callers test
// for them with errors.Is.
var (
	// ErrConfiguration marks a failure caused by missing or invalid
	// caller-supplied settings. Never retried automatically.
	ErrConfiguration = errors.New("configuration error")

	// ErrPermission marks a capture device that is denied or
	// unavailable. Never retried automatically; requires user action.
	ErrPermission = errors.New("permission error")

	// ErrTransport marks a network or session drop. Retried via backoff.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks a malformed inbound message. Logged and
	// dropped; the connection stays up.
	ErrProtocol = errors.New("protocol error")
)

// Configuration wraps err as a configuration error.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Permission wraps err as a permission error.
func Permission(err error) error {
	return fmt.Errorf("%w: %w", ErrPermission, err)
}

// Transport wraps err as a transport error.
func Transport(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Protocol wraps err as a protocol error.
func Protocol(err error) error {
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}

// Retryable reports whether err may be retried automatically.
// Configuration and permission failures require operator or user
// intervention; everything else is treated as transient.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrConfiguration) && !errors.Is(err, ErrPermission)
}
