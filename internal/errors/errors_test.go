package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSessionError(t *testing.T) {
	err := NewSessionError("failed to end session", ErrSessionNotFound).WithSessionID("react-dev-sub-task-1")

	want := "session error [session=react-dev-sub-task-1]: failed to end session: session not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("errors.Is(err, ErrSessionNotFound) = false, want true")
	}
	if !errors.Is(err, &SessionError{}) {
		t.Error("errors.Is(err, &SessionError{}) = false, want true")
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestCoordinationError(t *testing.T) {
	err := NewCoordinationError("sender is not a participant", nil).
		WithCoordinationID("coord-1").
		WithSessionID("s1")

	want := "coordination error [coordination=coord-1, session=s1]: sender is not a participant"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var ce *CoordinationError
	wrapped := fmt.Errorf("send: %w", err)
	if !errors.As(wrapped, &ce) {
		t.Fatal("errors.As failed for wrapped CoordinationError")
	}
	if ce.CoordinationID != "coord-1" {
		t.Errorf("CoordinationID = %q, want coord-1", ce.CoordinationID)
	}
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("write registry", cause).WithPath("/tmp/locks.json")

	want := "persistence error [path=/tmp/locks.json]: write registry: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestCorruptDocumentError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := NewCorruptDocumentError("/tmp/locks.json", cause)

	want := "persistence error [path=/tmp/locks.json]: load document: document is corrupt: unexpected end of JSON input"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrCorruptDocument) || !errors.Is(err, cause) {
		t.Error("error chain should match ErrCorruptDocument and the cause")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestNotFoundError_Sentinels(t *testing.T) {
	tests := []struct {
		resource string
		sentinel error
	}{
		{"session", ErrSessionNotFound},
		{"coordination", ErrCoordinationNotFound},
		{"permission request", ErrRequestNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			err := NewNotFoundError(tt.resource, "x")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", err, tt.sentinel)
			}
			if !IsNotFound(fmt.Errorf("wrapped: %w", err)) {
				t.Error("IsNotFound(wrapped) = false, want true")
			}
		})
	}

	if errors.Is(NewNotFoundError("session", "x"), ErrCoordinationNotFound) {
		t.Error("session NotFoundError should not match ErrCoordinationNotFound")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("sub-agent id cannot be empty").WithField("subAgent").WithValue("")

	want := "validation error [field=subAgent, value=]: sub-agent id cannot be empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("errors.Is(err, ErrInvalidInput) = false, want true")
	}
	if !IsUserFacing(fmt.Errorf("create: %w", err)) {
		t.Error("IsUserFacing(wrapped) = false, want true")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("acquire registry lock", 2*time.Second).WithCause(ErrLockBusy)

	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}
	if !errors.Is(err, ErrLockBusy) {
		t.Error("errors.Is(err, ErrLockBusy) = false, want true")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestClassificationHelpers_NilAndForeign(t *testing.T) {
	if IsRetryable(nil) || IsUserFacing(nil) {
		t.Error("nil error should be neither retryable nor user facing")
	}

	foreign := errors.New("boom")
	if IsUserFacing(foreign) {
		t.Error("foreign error should not be user facing")
	}
	if !IsRetryable(fmt.Errorf("x: %w", ErrLockBusy)) {
		t.Error("ErrLockBusy should be retryable")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	err := Wrap(ErrSessionNotFound, "end session")
	if err.Error() != "end session: session not found" {
		t.Errorf("Wrap() = %q", err.Error())
	}
	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("Wrap should preserve the chain")
	}
}
