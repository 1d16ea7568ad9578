// Package registry holds the shared registry document that every sub-session
// process reads and rewrites: active sessions, file locks, permission
// requests, coordinations and a bounded audit history.
//
// The document is the single source of truth. Components never cache it;
// they go through Store.Update, which loads the full document, applies a
// mutation and saves the full document again.
package registry

import (
	"sort"
	"time"
)

// DocumentVersion is written to the version field of new documents.
const DocumentVersion = "1.0.0"

// DefaultHistoryLimit caps lockHistory when the store is not configured.
const DefaultHistoryLimit = 100

// Registry is the persisted document.
type Registry struct {
	Version       string                        `json:"version"`
	LastUpdated   time.Time                     `json:"lastUpdated"`
	Sessions      map[string]*Session           `json:"activeSessions"`
	FileLocks     map[string]*FileLock          `json:"fileLocks"`
	Requests      map[string]*PermissionRequest `json:"permissionRegistry"`
	History       []HistoryEntry                `json:"lockHistory"`
	Coordinations map[string]*Coordination      `json:"coordinations"`

	historyLimit int
}

// New returns an empty document.
func New() *Registry {
	r := &Registry{Version: DocumentVersion}
	r.normalize()
	return r
}

// normalize fills nil collections so that callers and the JSON output never
// see null where an object or array is expected.
func (r *Registry) normalize() {
	if r.Version == "" {
		r.Version = DocumentVersion
	}
	if r.Sessions == nil {
		r.Sessions = make(map[string]*Session)
	}
	if r.FileLocks == nil {
		r.FileLocks = make(map[string]*FileLock)
	}
	if r.Requests == nil {
		r.Requests = make(map[string]*PermissionRequest)
	}
	if r.History == nil {
		r.History = []HistoryEntry{}
	}
	if r.Coordinations == nil {
		r.Coordinations = make(map[string]*Coordination)
	}
	for id, s := range r.Sessions {
		if s.ID == "" {
			s.ID = id
		}
		if s.AllowedPaths == nil {
			s.AllowedPaths = []string{}
		}
		if s.DeniedPaths == nil {
			s.DeniedPaths = []string{}
		}
		if s.LockAcquisitions == nil {
			s.LockAcquisitions = []string{}
		}
		if s.PermissionRequests == nil {
			s.PermissionRequests = []string{}
		}
	}
	for id, req := range r.Requests {
		if req.ID == "" {
			req.ID = id
		}
	}
}

// SetHistoryLimit changes the cap applied by AddHistory.
func (r *Registry) SetHistoryLimit(n int) { r.historyLimit = n }

// AddHistory prepends an entry and evicts the oldest beyond the cap.
func (r *Registry) AddHistory(now time.Time, action Action, sessionID, filePath, details string) {
	limit := r.historyLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	entry := HistoryEntry{
		Timestamp: now,
		Action:    action,
		SessionID: sessionID,
		FilePath:  filePath,
		Details:   details,
	}
	r.History = append([]HistoryEntry{entry}, r.History...)
	if len(r.History) > limit {
		r.History = r.History[:limit]
	}
}

// Session returns the session with the given id.
func (r *Registry) Session(id string) (*Session, bool) {
	s, ok := r.Sessions[id]
	return s, ok
}

// SessionIDs returns all session ids in sorted order.
func (r *Registry) SessionIDs() []string {
	ids := make([]string, 0, len(r.Sessions))
	for id := range r.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LockPaths returns all locked paths in sorted order.
func (r *Registry) LockPaths() []string {
	paths := make([]string, 0, len(r.FileLocks))
	for p := range r.FileLocks {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// PendingCount returns the number of requests still pending.
func (r *Registry) PendingCount() int {
	n := 0
	for _, req := range r.Requests {
		if req.Status == StatusPending {
			n++
		}
	}
	return n
}

// RequestsByStatus returns requests with the given status (all when empty),
// oldest first.
func (r *Registry) RequestsByStatus(status RequestStatus) []*PermissionRequest {
	out := []*PermissionRequest{}
	for _, req := range r.Requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
