package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrCompletion,
		Message: "language service unavailable",
	}

	expected := "completion_error: language service unavailable"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewCompletionError("request failed", cause)

	expected := "completion_error: request failed: dial tcp: connection refused"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestNewMissingCredentialsError(t *testing.T) {
	err := NewMissingCredentialsError("API keys not configured")
	if err.Type != ErrMissingCredentials {
		t.Errorf("Type = %v, want %v", err.Type, ErrMissingCredentials)
	}
	if err.Message != "API keys not configured" {
		t.Errorf("Message = %q, want %q", err.Message, "API keys not configured")
	}
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		typ  ErrorType
		want bool
	}{
		{
			name: "matching type",
			err:  NewSynthesisError("playback failed", nil),
			typ:  ErrSynthesis,
			want: true,
		},
		{
			name: "wrapped matching type",
			err:  fmt.Errorf("speak: %w", NewSynthesisError("playback failed", nil)),
			typ:  ErrSynthesis,
			want: true,
		},
		{
			name: "different type",
			err:  NewCaptureError("recognition aborted", nil),
			typ:  ErrSynthesis,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			typ:  ErrCapture,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			typ:  ErrCapture,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.typ); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}
