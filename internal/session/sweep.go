package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/subsession/internal/registry"
)

// SweptSession is one session selected by Sweep.
type SweptSession struct {
	SessionID    string    `json:"sessionId"`
	SubAgent     string    `json:"subAgent"`
	LastActivity time.Time `json:"lastActivity"`
	Reason       string    `json:"reason"`
	Ended        bool      `json:"ended"`
}

// SweepResult lists the sessions Sweep selected.
type SweepResult struct {
	DryRun   bool           `json:"dryRun"`
	Sessions []SweptSession `json:"sessions"`
}

// Sweep ends every session whose autoExpiry has passed or which has been
// inactive for longer than the stale threshold. With dryRun it only
// reports what it would end.
func (m *Manager) Sweep(ctx context.Context, dryRun bool) (*SweepResult, error) {
	res := &SweepResult{DryRun: dryRun, Sessions: []SweptSession{}}

	if dryRun {
		reg, err := m.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		res.Sessions = append(res.Sessions, m.sweepCandidates(reg, m.now().UTC())...)
		return res, nil
	}

	var ended []*EndResult
	var releaseErrs [][]error
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		now := m.now().UTC()
		for _, c := range m.sweepCandidates(reg, now) {
			r, errs := endIn(reg, now, c.SessionID, c.Reason)
			ended = append(ended, r)
			releaseErrs = append(releaseErrs, errs)
			c.Ended = true
			res.Sessions = append(res.Sessions, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, r := range ended {
		m.reportEnded(r, releaseErrs[i])
	}
	return res, nil
}

func (m *Manager) sweepCandidates(reg *registry.Registry, now time.Time) []SweptSession {
	var out []SweptSession
	for _, id := range reg.SessionIDs() {
		s := reg.Sessions[id]
		reason := ""
		switch {
		case s.AutoExpiry != nil && !now.Before(*s.AutoExpiry):
			reason = "Auto-expiry reached"
		case m.staleAfter > 0 && now.Sub(s.LastActivity) > m.staleAfter:
			reason = fmt.Sprintf("Stale session: inactive for %s", now.Sub(s.LastActivity).Truncate(time.Minute))
		default:
			continue
		}
		out = append(out, SweptSession{
			SessionID:    id,
			SubAgent:     s.SubAgent,
			LastActivity: s.LastActivity,
			Reason:       reason,
		})
	}
	return out
}
