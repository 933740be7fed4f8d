package errors

import (
	"errors"
	"fmt"
)

// Common error types for the terminal server
var (
	// Configuration errors
	ErrNotConfigured = errors.New("payment platform not configured")

	// Request errors
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")

	// Upstream errors
	ErrUpstreamRejected        = errors.New("upstream rejected request")
	ErrUpstreamRejectedPartial = errors.New("upstream rejected request after partial success")

	// Terminal session errors
	ErrSdkUnavailable     = errors.New("terminal sdk unavailable")
	ErrDeviceIncompatible = errors.New("device incompatible with tap to pay")
	ErrReaderDisconnected = errors.New("reader disconnected unexpectedly")
	ErrNoReader           = errors.New("no reader available")
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrSessionBusy        = errors.New("session busy")
	ErrSessionClosed      = errors.New("session closed")
)

// UpstreamError describes a non-success response from the payment platform.
// Body and message are kept for server-side logs only and must never be sent to a client.
type UpstreamError struct {
	Op        string // Operation that failed, e.g. "create payment intent"
	Status    int    // HTTP status returned upstream, 0 for network failures
	Code      string // Platform error code when present
	RequestID string // Platform request id for support lookups
	Message   string // Platform message
	Err       error  // Underlying error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamRejected}
	}
	return []error{ErrUpstreamRejected, e.Err}
}

// PartialError is returned when a multi-step upstream flow has left a resource
// behind. Nothing is rolled back; OrphanedID is what was left.
type PartialError struct {
	Op         string
	OrphanedID string
	Err        error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: orphaned %s: %v", e.Op, e.OrphanedID, e.Err)
}

func (e *PartialError) Unwrap() []error {
	return []error{ErrUpstreamRejectedPartial, e.Err}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
