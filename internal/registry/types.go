package registry

import (
	"fmt"
	"time"
)

// LockType is the kind of claim a session holds on a file.
type LockType string

const (
	LockRead      LockType = "read"
	LockWrite     LockType = "write"
	LockExclusive LockType = "exclusive"
)

// Valid reports whether t is a known lock type.
func (t LockType) Valid() bool {
	switch t {
	case LockRead, LockWrite, LockExclusive:
		return true
	}
	return false
}

// Shared reports whether other sessions may join a lock of this type.
func (t LockType) Shared() bool { return t == LockRead }

// ParseLockType converts s into a LockType.
func ParseLockType(s string) (LockType, error) {
	t := LockType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid lock type %q (want read, write or exclusive)", s)
	}
	return t, nil
}

// AccessMode is the default policy applied when no explicit path rule matches.
type AccessMode string

const (
	ModeRestricted AccessMode = "restricted"
	ModeExpanded   AccessMode = "expanded"
	ModeCustom     AccessMode = "custom"
)

// Valid reports whether m is a known access mode.
func (m AccessMode) Valid() bool {
	switch m {
	case ModeRestricted, ModeExpanded, ModeCustom:
		return true
	}
	return false
}

// ParseAccessMode converts s into an AccessMode.
func ParseAccessMode(s string) (AccessMode, error) {
	m := AccessMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("invalid access mode %q (want restricted, expanded or custom)", s)
	}
	return m, nil
}

// RequestType classifies a permission request.
type RequestType string

const (
	RequestFileAccess      RequestType = "file-access"
	RequestDirectoryAccess RequestType = "directory-access"
	RequestToolPermission  RequestType = "tool-permission"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestFileAccess, RequestDirectoryAccess, RequestToolPermission:
		return true
	}
	return false
}

// ParseRequestType converts s into a RequestType.
func ParseRequestType(s string) (RequestType, error) {
	t := RequestType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid request type %q (want file-access, directory-access or tool-permission)", s)
	}
	return t, nil
}

// RequestStatus is the state of a permission request. The only legal
// transitions are from StatusPending to one of the other three.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
	StatusExpired  RequestStatus = "expired"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool { return s != StatusPending }

// CoordinationStatus is the state of a coordination. Resolved is terminal.
type CoordinationStatus string

const (
	CoordinationActive   CoordinationStatus = "active"
	CoordinationResolved CoordinationStatus = "resolved"
)

// MessageType tags a coordination message.
type MessageType string

const (
	MessageInfo      MessageType = "info"
	MessageRequest   MessageType = "request"
	MessageProposal  MessageType = "proposal"
	MessageAgreement MessageType = "agreement"
	MessageWarning   MessageType = "warning"
)

// ParseMessageType converts s into a MessageType. Empty means MessageInfo.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case "":
		return MessageInfo, nil
	case MessageInfo, MessageRequest, MessageProposal, MessageAgreement, MessageWarning:
		return t, nil
	}
	return "", fmt.Errorf("invalid message type %q", s)
}

// Action names a history entry.
type Action string

const (
	ActionSessionCreated     Action = "session-created"
	ActionSessionEnded       Action = "session-ended"
	ActionAcquire            Action = "acquire"
	ActionReadLockShared     Action = "read-lock-shared"
	ActionLockConflict       Action = "lock-conflict"
	ActionRelease            Action = "release"
	ActionPermissionRequest  Action = "permission-requested"
	ActionPermissionApproved Action = "permission-approved"
	ActionPermissionDenied   Action = "permission-denied"
)

// Session is a sub-agent working under a main agent's supervision.
type Session struct {
	ID                 string           `json:"sessionId"`
	MainAgent          string           `json:"mainAgent"`
	SubAgent           string           `json:"subAgent"`
	StartTime          time.Time        `json:"startTime"`
	LastActivity       time.Time        `json:"lastActivity"`
	AccessMode         AccessMode       `json:"accessMode"`
	AllowedPaths       []string         `json:"allowedPaths"`
	DeniedPaths        []string         `json:"deniedPaths"`
	LockAcquisitions   []string         `json:"lockAcquisitions"`
	PermissionRequests []string         `json:"permissionRequests"`
	CoordinationData   CoordinationData `json:"coordinationData"`
	AutoExpiry         *time.Time       `json:"autoExpiry,omitempty"`
	Coordinations      []string         `json:"coordinations,omitempty"`
}

// CoordinationData is the task metadata supplied when a session starts.
type CoordinationData struct {
	RelatedMainSession string `json:"relatedMainSession,omitempty"`
	TaskScope          string `json:"taskScope"`
	ParentBranch       string `json:"parentBranch,omitempty"`
	SubBranch          string `json:"subBranch,omitempty"`
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) { s.LastActivity = now }

// HoldsLock reports whether path is in the session's held-lock list.
func (s *Session) HoldsLock(path string) bool {
	for _, p := range s.LockAcquisitions {
		if p == path {
			return true
		}
	}
	return false
}

// FileLock is the single lock record for one path.
type FileLock struct {
	LockedBy     string    `json:"lockedBy"`
	LockType     LockType  `json:"lockType"`
	CoReaders    []string  `json:"coReaders,omitempty"`
	AcquiredAt   time.Time `json:"acquiredAt"`
	Reason       string    `json:"reason"`
	RelatedFiles []string  `json:"relatedFiles"`
}

// Holders returns the owner followed by co-readers in join order.
func (l *FileLock) Holders() []string {
	out := make([]string, 0, 1+len(l.CoReaders))
	out = append(out, l.LockedBy)
	return append(out, l.CoReaders...)
}

// HeldBy reports whether sessionID owns or co-reads the lock.
func (l *FileLock) HeldBy(sessionID string) bool {
	if l.LockedBy == sessionID {
		return true
	}
	for _, r := range l.CoReaders {
		if r == sessionID {
			return true
		}
	}
	return false
}

// PermissionRequest asks to extend a session's allowed paths.
type PermissionRequest struct {
	ID                string        `json:"requestId"`
	SessionID         string        `json:"sessionId"`
	RequestType       RequestType   `json:"requestType"`
	RequestedResource string        `json:"requestedResource"`
	Justification     string        `json:"justification"`
	Status            RequestStatus `json:"status"`
	RequestedAt       time.Time     `json:"requestedAt"`
	RespondedAt       *time.Time    `json:"respondedAt,omitempty"`
	RespondedBy       string        `json:"respondedBy,omitempty"`
	ResponseReason    string        `json:"responseReason,omitempty"`
	AutoApprovalRules []string      `json:"autoApprovalRules"`
	Restrictions      []string      `json:"restrictions"`
}

// HistoryEntry is an immutable audit record.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	SessionID string    `json:"sessionId"`
	FilePath  string    `json:"filePath,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Coordination links several sessions negotiating around one conflict.
type Coordination struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Sessions   []string           `json:"sessions"`
	StartTime  time.Time          `json:"startTime"`
	Status     CoordinationStatus `json:"status"`
	Context    map[string]any     `json:"context"`
	Messages   []Message          `json:"messages"`
	Resolution *Resolution        `json:"resolution"`
}

// HasParticipant reports whether sessionID takes part in the coordination.
func (c *Coordination) HasParticipant(sessionID string) bool {
	for _, s := range c.Sessions {
		if s == sessionID {
			return true
		}
	}
	return false
}

// Message is one entry in a coordination's exchange.
type Message struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	FromSession string      `json:"fromSession"`
	Message     string      `json:"message"`
	Type        MessageType `json:"type"`
}

// Resolution records how a coordination ended.
type Resolution struct {
	Approach   string    `json:"approach"`
	ResolvedBy string    `json:"resolvedBy"`
	ResolvedAt time.Time `json:"resolvedAt"`
}
