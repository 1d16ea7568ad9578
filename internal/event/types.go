package event

import (
	"time"

	"github.com/Iron-Ham/subsession/internal/registry"
)

// Event is the interface that all events implement.
type Event interface {
	// EventType returns "category.action", e.g. "lock.acquired".
	EventType() string
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeSessionCreated       = "session.created"
	TypeSessionEnded         = "session.ended"
	TypeLockAcquired         = "lock.acquired"
	TypeLockReleased         = "lock.released"
	TypeLockConflict         = "lock.conflict"
	TypePermissionRequested  = "permission.requested"
	TypePermissionResolved   = "permission.resolved"
	TypeCoordinationStarted  = "coordination.started"
	TypeCoordinationMessage  = "coordination.message"
	TypeCoordinationResolved = "coordination.resolved"
	TypeConflictsResolved    = "conflict.resolved"
	TypeRegistryChanged      = "registry.changed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionCreatedEvent is emitted after a session record is saved.
type SessionCreatedEvent struct {
	baseEvent
	SessionID  string
	MainAgent  string
	SubAgent   string
	AccessMode registry.AccessMode
}

// NewSessionCreatedEvent creates a SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, mainAgent, subAgent string, mode registry.AccessMode) SessionCreatedEvent {
	return SessionCreatedEvent{
		baseEvent:  newBaseEvent(TypeSessionCreated),
		SessionID:  sessionID,
		MainAgent:  mainAgent,
		SubAgent:   subAgent,
		AccessMode: mode,
	}
}

// SessionEndedEvent is emitted after a session and its locks are removed.
type SessionEndedEvent struct {
	baseEvent
	SessionID       string
	Reason          string
	ReleasedLocks   []string
	ExpiredRequests []string
}

// NewSessionEndedEvent creates a SessionEndedEvent.
func NewSessionEndedEvent(sessionID, reason string, releasedLocks, expiredRequests []string) SessionEndedEvent {
	return SessionEndedEvent{
		baseEvent:       newBaseEvent(TypeSessionEnded),
		SessionID:       sessionID,
		Reason:          reason,
		ReleasedLocks:   releasedLocks,
		ExpiredRequests: expiredRequests,
	}
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted when a session obtains or joins a lock.
type LockAcquiredEvent struct {
	baseEvent
	SessionID string
	FilePath  string
	LockType  registry.LockType
	Shared    bool // joined an existing read lock as co-reader
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(sessionID, filePath string, lockType registry.LockType, shared bool) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent: newBaseEvent(TypeLockAcquired),
		SessionID: sessionID,
		FilePath:  filePath,
		LockType:  lockType,
		Shared:    shared,
	}
}

// LockReleasedEvent is emitted when a session gives up a lock.
type LockReleasedEvent struct {
	baseEvent
	SessionID  string
	FilePath   string
	PromotedTo string // co-reader that became owner, empty if none
	Removed    bool   // no holders remain and the lock record was deleted
}

// NewLockReleasedEvent creates a LockReleasedEvent.
func NewLockReleasedEvent(sessionID, filePath, promotedTo string, removed bool) LockReleasedEvent {
	return LockReleasedEvent{
		baseEvent:  newBaseEvent(TypeLockReleased),
		SessionID:  sessionID,
		FilePath:   filePath,
		PromotedTo: promotedTo,
		Removed:    removed,
	}
}

// LockConflictEvent is emitted when an acquisition is refused.
type LockConflictEvent struct {
	baseEvent
	SessionID    string
	FilePath     string
	ConflictWith string
	ConflictType registry.LockType
}

// NewLockConflictEvent creates a LockConflictEvent.
func NewLockConflictEvent(sessionID, filePath, conflictWith string, conflictType registry.LockType) LockConflictEvent {
	return LockConflictEvent{
		baseEvent:    newBaseEvent(TypeLockConflict),
		SessionID:    sessionID,
		FilePath:     filePath,
		ConflictWith: conflictWith,
		ConflictType: conflictType,
	}
}

// -----------------------------------------------------------------------------
// Permission Events
// -----------------------------------------------------------------------------

// PermissionRequestedEvent is emitted when a request is recorded.
type PermissionRequestedEvent struct {
	baseEvent
	RequestID    string
	SessionID    string
	Resource     string
	RequestType  registry.RequestType
	AutoApproved bool
}

// NewPermissionRequestedEvent creates a PermissionRequestedEvent.
func NewPermissionRequestedEvent(requestID, sessionID, resource string, requestType registry.RequestType, autoApproved bool) PermissionRequestedEvent {
	return PermissionRequestedEvent{
		baseEvent:    newBaseEvent(TypePermissionRequested),
		RequestID:    requestID,
		SessionID:    sessionID,
		Resource:     resource,
		RequestType:  requestType,
		AutoApproved: autoApproved,
	}
}

// PermissionResolvedEvent is emitted when a pending request leaves pending.
type PermissionResolvedEvent struct {
	baseEvent
	RequestID   string
	SessionID   string
	Status      registry.RequestStatus
	RespondedBy string
}

// NewPermissionResolvedEvent creates a PermissionResolvedEvent.
func NewPermissionResolvedEvent(requestID, sessionID string, status registry.RequestStatus, respondedBy string) PermissionResolvedEvent {
	return PermissionResolvedEvent{
		baseEvent:   newBaseEvent(TypePermissionResolved),
		RequestID:   requestID,
		SessionID:   sessionID,
		Status:      status,
		RespondedBy: respondedBy,
	}
}

// -----------------------------------------------------------------------------
// Coordination Events
// -----------------------------------------------------------------------------

// CoordinationStartedEvent is emitted when sessions are linked.
type CoordinationStartedEvent struct {
	baseEvent
	CoordinationID string
	Type           string
	Sessions       []string
}

// NewCoordinationStartedEvent creates a CoordinationStartedEvent.
func NewCoordinationStartedEvent(coordinationID, coordType string, sessions []string) CoordinationStartedEvent {
	return CoordinationStartedEvent{
		baseEvent:      newBaseEvent(TypeCoordinationStarted),
		CoordinationID: coordinationID,
		Type:           coordType,
		Sessions:       sessions,
	}
}

// CoordinationMessageEvent is emitted when a participant posts a message.
type CoordinationMessageEvent struct {
	baseEvent
	CoordinationID string
	MessageID      string
	FromSession    string
	MessageType    registry.MessageType
}

// NewCoordinationMessageEvent creates a CoordinationMessageEvent.
func NewCoordinationMessageEvent(coordinationID, messageID, fromSession string, msgType registry.MessageType) CoordinationMessageEvent {
	return CoordinationMessageEvent{
		baseEvent:      newBaseEvent(TypeCoordinationMessage),
		CoordinationID: coordinationID,
		MessageID:      messageID,
		FromSession:    fromSession,
		MessageType:    msgType,
	}
}

// CoordinationResolvedEvent is emitted when a coordination is resolved.
type CoordinationResolvedEvent struct {
	baseEvent
	CoordinationID string
	Approach       string
	ResolvedBy     string
}

// NewCoordinationResolvedEvent creates a CoordinationResolvedEvent.
func NewCoordinationResolvedEvent(coordinationID, approach, resolvedBy string) CoordinationResolvedEvent {
	return CoordinationResolvedEvent{
		baseEvent:      newBaseEvent(TypeCoordinationResolved),
		CoordinationID: coordinationID,
		Approach:       approach,
		ResolvedBy:     resolvedBy,
	}
}

// ConflictsResolvedEvent is emitted when automatic resolution approved
// pending requests.
type ConflictsResolvedEvent struct {
	baseEvent
	ConflictIDs []string
	RequestIDs  []string
}

// NewConflictsResolvedEvent creates a ConflictsResolvedEvent.
func NewConflictsResolvedEvent(conflictIDs, requestIDs []string) ConflictsResolvedEvent {
	return ConflictsResolvedEvent{
		baseEvent:   newBaseEvent(TypeConflictsResolved),
		ConflictIDs: conflictIDs,
		RequestIDs:  requestIDs,
	}
}

// -----------------------------------------------------------------------------
// Registry Events
// -----------------------------------------------------------------------------

// RegistryChangedEvent is emitted by the watcher when the document's
// canonical digest changes.
type RegistryChangedEvent struct {
	baseEvent
	Path     string
	Revision string
	Status   *registry.Status
}

// NewRegistryChangedEvent creates a RegistryChangedEvent.
func NewRegistryChangedEvent(path, revision string, status *registry.Status) RegistryChangedEvent {
	return RegistryChangedEvent{
		baseEvent: newBaseEvent(TypeRegistryChanged),
		Path:      path,
		Revision:  revision,
		Status:    status,
	}
}
