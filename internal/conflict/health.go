package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Health score deductions.
const (
	conflictPenalty = 10
	lockPenalty     = 20
	pendingPenalty  = 15
	stalePenalty    = 5
)

// AssessHealth scores the registry from 100 down. The level is healthy
// above 80, warning above 60 and critical otherwise; the score never drops
// below zero.
func AssessHealth(st *registry.Status, conflicts []Conflict, now time.Time, cfg config.HealthConfig) Health {
	score := 100
	issues := []string{}

	score -= len(conflicts) * conflictPenalty
	if len(conflicts) > 0 {
		issues = append(issues, fmt.Sprintf("%d active conflicts", len(conflicts)))
	}

	if st.TotalActiveLocks > cfg.LockThreshold {
		score -= lockPenalty
		issues = append(issues, "High file lock usage")
	}
	if st.TotalPendingRequests > cfg.PendingThreshold {
		score -= pendingPenalty
		issues = append(issues, "High number of pending permission requests")
	}

	stale := 0
	for _, s := range st.Sessions {
		if now.Sub(s.LastActivity) > cfg.StaleAfter {
			stale++
		}
	}
	score -= stale * stalePenalty
	if stale > 0 {
		issues = append(issues, fmt.Sprintf("%d stale sessions", stale))
	}

	h := Health{
		Score:           max(0, score),
		Level:           LevelCritical,
		Issues:          issues,
		Recommendations: []string{},
	}
	switch {
	case score > 80:
		h.Level = LevelHealthy
	case score > 60:
		h.Level = LevelWarning
	}
	if score < 80 {
		h.Recommendations = append(h.Recommendations, "Review and resolve coordination issues")
	}
	return h
}

// Recommend produces advisory messages from threshold checks. Long-running
// sessions are reported in id order.
func Recommend(st *registry.Status, conflicts []Conflict, now time.Time, cfg config.RecommendConfig) []Recommendation {
	recs := []Recommendation{}

	if st.TotalActiveLocks > cfg.LockThreshold {
		recs = append(recs, Recommendation{
			Priority: "medium",
			Category: "performance",
			Message:  "High number of active file locks detected",
			Action:   "Consider reviewing sub-session scopes to reduce lock contention",
		})
	}
	if st.TotalPendingRequests > cfg.PendingThreshold {
		recs = append(recs, Recommendation{
			Priority: "high",
			Category: "access-control",
			Message:  "High number of pending permission requests",
			Action:   "Review sub-session access modes - consider expanding permissions for common patterns",
		})
	}
	if len(conflicts) > 0 {
		recs = append(recs, Recommendation{
			Priority: "high",
			Category: "conflicts",
			Message:  fmt.Sprintf("%d coordination conflicts detected", len(conflicts)),
			Action:   "Review conflict resolution suggestions and implement coordination strategies",
		})
	}

	ids := make([]string, 0, len(st.Sessions))
	for id := range st.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if now.Sub(st.Sessions[id].StartTime) <= cfg.MaxSessionAge {
			continue
		}
		recs = append(recs, Recommendation{
			Priority: "medium",
			Category: "session-management",
			Message:  "Long-running sub-session detected: " + id,
			Action:   fmt.Sprintf("Review session %s - consider breaking into smaller tasks or ending session", id),
		})
	}
	return recs
}
