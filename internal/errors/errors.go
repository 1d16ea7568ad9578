// Package errors provides the error taxonomy shared by the sub-session
// coordination components. It defines sentinel errors, domain error types
// with identifier context, and classification helpers used by the CLI to
// decide how to print a failure.
//
// # Error Types
//
// Domain errors carry the identifier of the object involved:
//   - SessionError: session lifecycle failures
//   - CoordinationError: coordination session failures
//   - PersistenceError: registry or coordination log read/write failures
//
// Semantic errors represent common conditions:
//   - NotFoundError: referenced session, coordination or request does not exist
//   - ValidationError: invalid input (empty agent id, unknown enum value)
//   - TimeoutError: the cooperative registry lock could not be taken in time
//
// Lock conflicts and access denials are not errors. They are returned as
// structured results by the components that produce them.
//
// # Usage
//
//	err := errors.NewNotFoundError("session", id)
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var nf *errors.NotFoundError
//	if errors.As(err, &nf) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers need only this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrSessionNotFound indicates that a session id is not in the registry.
	ErrSessionNotFound = New("session not found")
	// ErrCoordinationNotFound indicates that a coordination id is not in the registry.
	ErrCoordinationNotFound = New("coordination not found")
	// ErrRequestNotFound indicates that a permission request id is unknown.
	ErrRequestNotFound = New("permission request not found")
)

var (
	// ErrLockBusy indicates that the cooperative registry lock file is held
	// by another live process and could not be acquired before the deadline.
	ErrLockBusy = New("registry is locked by another process")
	// ErrCorruptDocument indicates that a persisted document could not be parsed.
	ErrCorruptDocument = New("document is corrupt")
)

var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// notFoundSentinels maps resource types to their sentinel so that
// errors.Is(NewNotFoundError("session", id), ErrSessionNotFound) holds.
var notFoundSentinels = map[string]error{
	"session":            ErrSessionNotFound,
	"coordination":       ErrCoordinationNotFound,
	"permission request": ErrRequestNotFound,
}

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// SubsessionError is implemented by every error type in this package.
type SubsessionError interface {
	error
	Unwrap() error
	Is(target error) bool
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// formatPrefixed renders "<kind> [k=v, ...]: message: cause".
func formatPrefixed(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// SessionError represents a session lifecycle failure.
//
//	err := errors.NewSessionError("failed to end session", cause).WithSessionID("react-dev-sub-task-...")
type SessionError struct {
	baseError
	SessionID string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session id to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, "session="+e.SessionID)
	}
	return formatPrefixed("session error", parts, e.message, e.cause)
}

// Is reports whether target is a SessionError or matches the cause.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinationError represents a coordination session failure.
type CoordinationError struct {
	baseError
	CoordinationID string
	SessionID      string
}

// NewCoordinationError creates a new CoordinationError.
func NewCoordinationError(message string, cause error) *CoordinationError {
	return &CoordinationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			userFacing: true,
		},
	}
}

// WithCoordinationID adds a coordination id to the error context.
func (e *CoordinationError) WithCoordinationID(id string) *CoordinationError {
	e.CoordinationID = id
	return e
}

// WithSessionID adds the acting session id to the error context.
func (e *CoordinationError) WithSessionID(id string) *CoordinationError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *CoordinationError) Error() string {
	var parts []string
	if e.CoordinationID != "" {
		parts = append(parts, "coordination="+e.CoordinationID)
	}
	if e.SessionID != "" {
		parts = append(parts, "session="+e.SessionID)
	}
	return formatPrefixed("coordination error", parts, e.message, e.cause)
}

// Is reports whether target is a CoordinationError or matches the cause.
func (e *CoordinationError) Is(target error) bool {
	if _, ok := target.(*CoordinationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PersistenceError represents a failure to read or write a persisted document.
//
//	err := errors.NewPersistenceError("write registry", cause).WithPath(path)
type PersistenceError struct {
	baseError
	Path string
}

// NewPersistenceError creates a new PersistenceError. Disk errors are
// usually transient so the error is marked retryable.
func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithPath adds the document path to the error context.
func (e *PersistenceError) WithPath(path string) *PersistenceError {
	e.Path = path
	return e
}

// NewCorruptDocumentError reports a persisted document that could not be
// parsed or failed validation. It matches ErrCorruptDocument and cause, and
// is not retryable: reading the same bytes again fails the same way.
func NewCorruptDocumentError(path string, cause error) *PersistenceError {
	e := NewPersistenceError("load document", fmt.Errorf("%w: %w", ErrCorruptDocument, cause)).WithPath(path)
	e.retryable = false
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	return formatPrefixed("persistence error", parts, e.message, e.cause)
}

// Is reports whether target is a PersistenceError or matches the cause.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
//	err := errors.NewNotFoundError("session", "abc123")
//	fmt.Println(err) // "session 'abc123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is matches any NotFoundError and the sentinel for the resource type.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if sentinel, ok := notFoundSentinels[e.ResourceType]; ok && target == sentinel {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input.
//
//	err := errors.NewValidationError("sub-agent id cannot be empty").WithField("subAgent")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatPrefixed("validation error", parts, e.message, e.cause)
}

// Is matches any ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that did not finish in time.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is matches any TimeoutError and ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if err represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se SubsessionError
	if As(err, &se) {
		return se.IsRetryable()
	}
	return Is(err, ErrTimeout) || Is(err, ErrLockBusy)
}

// IsUserFacing returns true if the error message is safe to show as-is.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var se SubsessionError
	if As(err, &se) {
		return se.IsUserFacing()
	}
	return false
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return As(err, &nf)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
