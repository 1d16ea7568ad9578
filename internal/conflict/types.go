package conflict

import (
	"time"
)

// Type is the category of a detected conflict. The same names are used as
// coordination types when sessions are linked to resolve one.
type Type string

const (
	TypeFileLock             Type = "file-lock-conflict"
	TypeBranch               Type = "branch-conflict"
	TypeResourceContention   Type = "resource-contention"
	TypePermissionEscalation Type = "permission-escalation"
)

// Approach is a resolution strategy.
type Approach string

const (
	ApproachWait       Approach = "wait"
	ApproachCoordinate Approach = "coordinate"
	ApproachEscalate   Approach = "escalate"
	ApproachPartition  Approach = "partition"
	ApproachSequential Approach = "sequential"
)

// Suggestion is an advisory resolution attached to a conflict.
type Suggestion struct {
	Approach   Approach `json:"approach"`
	Suggestion string   `json:"suggestion"`
	Actions    []string `json:"actions"`
}

// Conflict is one detected conflict. Only the fields relevant to its Type
// are set.
type Conflict struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	// file-lock-conflict
	FilePath          string     `json:"filePath,omitempty"`
	InvolvedSessions  []string   `json:"involvedSessions,omitempty"`
	ConflictCount     int        `json:"conflictCount,omitempty"`
	CurrentLockHolder string     `json:"currentLockHolder,omitempty"`
	LastConflictTime  *time.Time `json:"lastConflictTime,omitempty"`

	// branch-conflict
	ParentBranch        string   `json:"parentBranch,omitempty"`
	PrimarySession      string   `json:"primarySession,omitempty"`
	ConflictingSessions []string `json:"conflictingSessions,omitempty"`

	// resource-contention
	SessionID    string `json:"sessionId,omitempty"`
	ResourcePath string `json:"resourcePath,omitempty"`
	RequestCount int    `json:"requestCount,omitempty"`

	SuggestedResolution Suggestion `json:"suggestedResolution"`
}

// Sessions returns every session named by the conflict.
func (c *Conflict) Sessions() []string {
	switch c.Type {
	case TypeFileLock:
		return c.InvolvedSessions
	case TypeBranch:
		return append([]string{c.PrimarySession}, c.ConflictingSessions...)
	case TypeResourceContention:
		return []string{c.SessionID}
	}
	return nil
}

// Resolution actions.
const (
	ActionDocumentationAccess = "auto-approved-documentation-access"
	ActionDocumentationSplit  = "documentation-split-suggestion"
)

// Resolution is the outcome of automatic resolution for one conflict.
// Applied is false for proposals that were only computed.
type Resolution struct {
	Success          bool     `json:"success"`
	ConflictID       string   `json:"conflictId"`
	Action           string   `json:"action"`
	Details          string   `json:"details"`
	SuggestedSplits  []string `json:"suggestedSplits,omitempty"`
	ApprovedRequests []string `json:"approvedRequests,omitempty"`
	Applied          bool     `json:"applied"`
}

// Level is the coarse system health rating.
type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Health is the scored assessment of the registry.
type Health struct {
	Score           int      `json:"score"`
	Level           Level    `json:"level"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// Recommendation is an advisory message. Nothing enforces it.
type Recommendation struct {
	Priority string `json:"priority"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Summary is the count block of a Report.
type Summary struct {
	ActiveSessions    int `json:"activeSessions"`
	ActiveLocks       int `json:"activeLocks"`
	PendingRequests   int `json:"pendingRequests"`
	DetectedConflicts int `json:"detectedConflicts"`
	AutoResolutions   int `json:"autoResolutions"`
}

// Report is the system-wide coordination analysis.
type Report struct {
	Timestamp       time.Time        `json:"timestamp"`
	Summary         Summary          `json:"summary"`
	Conflicts       []Conflict       `json:"conflicts"`
	AutoResolutions []Resolution     `json:"autoResolutions"`
	Recommendations []Recommendation `json:"recommendations"`
	SystemHealth    Health           `json:"systemHealth"`
}
