package registry

import (
	"slices"
	"sort"
	"time"
)

// recentActivityLimit is how many history entries Status reports.
const recentActivityLimit = 10

// Status is a read-only snapshot used by dashboards, health assessment and
// recommendations.
type Status struct {
	TotalActiveSessions  int                       `json:"totalActiveSessions"`
	TotalActiveLocks     int                       `json:"totalActiveLocks"`
	TotalPendingRequests int                       `json:"totalPendingRequests"`
	Sessions             map[string]SessionSummary `json:"sessions"`
	LockConflicts        []LockConflictSummary     `json:"lockConflicts"`
	RecentActivity       []HistoryEntry            `json:"recentActivity"`
	LastUpdated          time.Time                 `json:"lastUpdated"`
	Revision             string                    `json:"revision,omitempty"`
}

// SessionSummary is the per-session part of Status.
type SessionSummary struct {
	SubAgent             string     `json:"subAgent"`
	MainAgent            string     `json:"mainAgent"`
	StartTime            time.Time  `json:"startTime"`
	LastActivity         time.Time  `json:"lastActivity"`
	AccessMode           AccessMode `json:"accessMode"`
	ActiveLocksCount     int        `json:"activeLocksCount"`
	PendingRequestsCount int        `json:"pendingRequestsCount"`
	TaskScope            string     `json:"taskScope"`
	ParentBranch         string     `json:"parentBranch,omitempty"`
}

// LockConflictSummary counts recorded lock conflicts for one path over the
// whole retained history.
type LockConflictSummary struct {
	FilePath         string    `json:"filePath"`
	ConflictCount    int       `json:"conflictCount"`
	LastConflict     time.Time `json:"lastConflict"`
	InvolvedSessions []string  `json:"involveSessions"`
}

// Status builds a snapshot of the document. Revision is left empty; the
// store fills it in because it requires canonical encoding.
func (r *Registry) Status() *Status {
	st := &Status{
		TotalActiveSessions:  len(r.Sessions),
		TotalActiveLocks:     len(r.FileLocks),
		TotalPendingRequests: r.PendingCount(),
		Sessions:             make(map[string]SessionSummary, len(r.Sessions)),
		LockConflicts:        []LockConflictSummary{},
		LastUpdated:          r.LastUpdated,
	}

	for id, s := range r.Sessions {
		pending := 0
		for _, reqID := range s.PermissionRequests {
			if req, ok := r.Requests[reqID]; ok && req.Status == StatusPending {
				pending++
			}
		}
		st.Sessions[id] = SessionSummary{
			SubAgent:             s.SubAgent,
			MainAgent:            s.MainAgent,
			StartTime:            s.StartTime,
			LastActivity:         s.LastActivity,
			AccessMode:           s.AccessMode,
			ActiveLocksCount:     len(s.LockAcquisitions),
			PendingRequestsCount: pending,
			TaskScope:            s.CoordinationData.TaskScope,
			ParentBranch:         s.CoordinationData.ParentBranch,
		}
	}

	byPath := make(map[string]*LockConflictSummary)
	for _, h := range r.History {
		if h.Action != ActionLockConflict {
			continue
		}
		sum, ok := byPath[h.FilePath]
		if !ok {
			// history is newest first, so the first hit is the latest
			sum = &LockConflictSummary{FilePath: h.FilePath, LastConflict: h.Timestamp}
			byPath[h.FilePath] = sum
		}
		sum.ConflictCount++
		if !slices.Contains(sum.InvolvedSessions, h.SessionID) {
			sum.InvolvedSessions = append(sum.InvolvedSessions, h.SessionID)
		}
	}
	for _, sum := range byPath {
		st.LockConflicts = append(st.LockConflicts, *sum)
	}
	sort.Slice(st.LockConflicts, func(i, j int) bool {
		return st.LockConflicts[i].FilePath < st.LockConflicts[j].FilePath
	})

	n := min(len(r.History), recentActivityLimit)
	st.RecentActivity = append([]HistoryEntry{}, r.History[:n]...)

	return st
}
