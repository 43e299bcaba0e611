// Package core holds the error taxonomy shared by every conversation component.
package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error for every component boundary. The orchestrator
// routes on Type; Err carries the underlying cause for logs and unwrapping.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrMissingCredentials blocks the attempted transition until the user
	// supplies API keys.
	ErrMissingCredentials ErrorType = "missing_credentials"
	// ErrUnsupportedCapability means the platform offers no speech recognition.
	ErrUnsupportedCapability ErrorType = "unsupported_capability"
	// ErrCapture means recognition failed mid-session.
	ErrCapture ErrorType = "capture_error"
	// ErrCompletion means the language service failed; the user may retry.
	ErrCompletion ErrorType = "completion_error"
	// ErrSynthesis means audio playback failed. Non-fatal: the text reply
	// remains valid.
	ErrSynthesis ErrorType = "synthesis_error"
	// ErrDeviceAccessDenied means the recording device could not be opened.
	ErrDeviceAccessDenied ErrorType = "device_access_denied"
)

// NewMissingCredentialsError creates a missing credentials error.
func NewMissingCredentialsError(message string) *Error {
	return &Error{Type: ErrMissingCredentials, Message: message}
}

// NewUnsupportedCapabilityError creates an unsupported capability error.
func NewUnsupportedCapabilityError(message string) *Error {
	return &Error{Type: ErrUnsupportedCapability, Message: message}
}

// NewCaptureError creates a capture error wrapping cause.
func NewCaptureError(message string, cause error) *Error {
	return &Error{Type: ErrCapture, Message: message, Err: cause}
}

// NewCompletionError creates a completion error wrapping cause.
func NewCompletionError(message string, cause error) *Error {
	return &Error{Type: ErrCompletion, Message: message, Err: cause}
}

// NewSynthesisError creates a synthesis error wrapping cause.
func NewSynthesisError(message string, cause error) *Error {
	return &Error{Type: ErrSynthesis, Message: message, Err: cause}
}

// NewDeviceAccessDeniedError creates a device access error wrapping cause.
func NewDeviceAccessDeniedError(message string, cause error) *Error {
	return &Error{Type: ErrDeviceAccessDenied, Message: message, Err: cause}
}

// IsType reports whether err is a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
