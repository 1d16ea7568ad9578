package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/coordination"
	"github.com/Iron-Ham/subsession/internal/guard"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// StatusText renders the registry status.
func StatusText(st *registry.Status, now time.Time) TextFunc {
	return func(s *Styles) string {
		var b strings.Builder
		b.WriteString(s.Title.Render("Sub-sessions") + "\n")
		fmt.Fprintf(&b, "%s %d   %s %d   %s %d\n",
			s.Label.Render("sessions:"), st.TotalActiveSessions,
			s.Label.Render("locks:"), st.TotalActiveLocks,
			s.Label.Render("pending:"), st.TotalPendingRequests)
		if st.Revision != "" {
			fmt.Fprintf(&b, "%s %s\n", s.Label.Render("revision:"), ShortRev(st.Revision))
		}

		ids := make([]string, 0, len(st.Sessions))
		for id := range st.Sessions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > 0 {
			b.WriteString("\n" + s.Header.Render("Sessions") + "\n")
		}
		for _, id := range ids {
			sum := st.Sessions[id]
			fmt.Fprintf(&b, "  %s  %s/%s  %s  locks=%d pending=%d  age=%s\n",
				id, sum.MainAgent, sum.SubAgent, sum.AccessMode,
				sum.ActiveLocksCount, sum.PendingRequestsCount,
				Age(sum.StartTime, now))
			if sum.TaskScope != "" {
				fmt.Fprintf(&b, "    %s\n", s.Muted.Render(sum.TaskScope))
			}
		}

		if len(st.LockConflicts) > 0 {
			b.WriteString("\n" + s.Header.Render("Lock conflicts") + "\n")
			for _, c := range st.LockConflicts {
				fmt.Fprintf(&b, "  %s  %s  %s\n", s.Warning.Render(fmt.Sprintf("%dx", c.ConflictCount)),
					c.FilePath, strings.Join(c.InvolvedSessions, ", "))
			}
		}

		if len(st.RecentActivity) > 0 {
			b.WriteString("\n" + s.Header.Render("Recent activity") + "\n")
			for _, h := range st.RecentActivity {
				fmt.Fprintf(&b, "  %s  %-22s %s %s\n",
					s.Muted.Render(h.Timestamp.Format(time.TimeOnly)), h.Action, h.SessionID, h.FilePath)
			}
		}
		return b.String()
	}
}

// SessionText renders one session.
func SessionText(sess *registry.Session, now time.Time) TextFunc {
	return func(s *Styles) string {
		var b strings.Builder
		b.WriteString(s.Title.Render(sess.ID) + "\n")
		row := func(label, value string) {
			if value != "" {
				fmt.Fprintf(&b, "%-14s %s\n", s.Label.Render(label), value)
			}
		}
		row("agents:", sess.MainAgent+" -> "+sess.SubAgent)
		row("mode:", string(sess.AccessMode))
		row("task:", sess.CoordinationData.TaskScope)
		row("branch:", sess.CoordinationData.ParentBranch)
		row("started:", sess.StartTime.Format(time.RFC3339)+" ("+Age(sess.StartTime, now)+" ago)")
		row("allowed:", strings.Join(sess.AllowedPaths, ", "))
		row("denied:", strings.Join(sess.DeniedPaths, ", "))
		row("locks:", strings.Join(sess.LockAcquisitions, ", "))
		row("requests:", strings.Join(sess.PermissionRequests, ", "))
		return b.String()
	}
}

// SessionsText renders a session list.
func SessionsText(sessions []*registry.Session, now time.Time) TextFunc {
	return func(s *Styles) string {
		if len(sessions) == 0 {
			return s.Muted.Render("no active sessions")
		}
		var b strings.Builder
		for _, sess := range sessions {
			fmt.Fprintf(&b, "%s  %s/%s  %s  %s\n",
				sess.ID, sess.MainAgent, sess.SubAgent, sess.AccessMode, s.Muted.Render(Age(sess.StartTime, now)))
		}
		return b.String()
	}
}

// DecisionText renders an access decision.
func DecisionText(path string, d access.Decision) TextFunc {
	return func(s *Styles) string {
		verdict := s.Success.Render("allowed")
		if !d.Allowed {
			verdict = s.Error.Render("denied")
		}
		out := fmt.Sprintf("%s %s %s: %s", verdict, d.Operation, path, d.Reason)
		if d.Matched != "" {
			out += s.Muted.Render(fmt.Sprintf(" (matched %q)", d.Matched))
		}
		return out
	}
}

// GuardText renders an operation validation.
func GuardText(res *guard.Result) TextFunc {
	return func(s *Styles) string {
		var b strings.Builder
		if res.Allowed {
			b.WriteString(s.Success.Render("allowed") + "  " + res.Reason + "\n")
		} else {
			b.WriteString(s.Error.Render("blocked") + "  " + res.Reason + "\n")
		}
		for _, p := range res.ValidatedPaths {
			lock := ""
			if p.Locked {
				lock = s.Muted.Render(" (write lock)")
			}
			fmt.Fprintf(&b, "  %s %s%s\n", s.Bool(p.Allowed), p.Path, lock)
		}
		if sa := res.SuggestedAction; sa != nil {
			b.WriteString(s.Label.Render("next:") + " " + sa.Description + "\n")
			if sa.Command != "" {
				b.WriteString("  " + sa.Command + "\n")
			}
		}
		return b.String()
	}
}

// RequestsText renders permission requests.
func RequestsText(reqs []*registry.PermissionRequest) TextFunc {
	return func(s *Styles) string {
		if len(reqs) == 0 {
			return s.Muted.Render("no permission requests")
		}
		var b strings.Builder
		for _, r := range reqs {
			fmt.Fprintf(&b, "%s  %s  %s  %s %s\n",
				r.ID, s.Level(string(r.Status)), r.SessionID, r.RequestType, r.RequestedResource)
			if r.Justification != "" {
				fmt.Fprintf(&b, "    %s\n", s.Muted.Render(r.Justification))
			}
		}
		return b.String()
	}
}

// ConflictsText renders detected conflicts.
func ConflictsText(conflicts []conflict.Conflict) TextFunc {
	return func(s *Styles) string {
		if len(conflicts) == 0 {
			return s.Success.Render("no conflicts detected")
		}
		var b strings.Builder
		for _, c := range conflicts {
			writeConflict(&b, s, c)
		}
		return b.String()
	}
}

func writeConflict(b *strings.Builder, s *Styles, c conflict.Conflict) {
	switch c.Type {
	case conflict.TypeFileLock:
		fmt.Fprintf(b, "%s  %s  %dx, held by %s\n", s.Warning.Render(string(c.Type)), c.FilePath, c.ConflictCount, orNone(c.CurrentLockHolder))
	case conflict.TypeBranch:
		fmt.Fprintf(b, "%s  %s  primary %s, also %s\n", s.Warning.Render(string(c.Type)), c.ParentBranch, c.PrimarySession, strings.Join(c.ConflictingSessions, ", "))
	case conflict.TypeResourceContention:
		fmt.Fprintf(b, "%s  %s  %d requests from %s\n", s.Warning.Render(string(c.Type)), c.ResourcePath, c.RequestCount, c.SessionID)
	default:
		fmt.Fprintf(b, "%s  %s\n", s.Warning.Render(string(c.Type)), c.ID)
	}
	sr := c.SuggestedResolution
	if sr.Suggestion != "" {
		fmt.Fprintf(b, "  %s %s\n", s.Label.Render(string(sr.Approach)+":"), sr.Suggestion)
	}
}

// ResolutionsText renders automatic resolutions.
func ResolutionsText(res []conflict.Resolution) TextFunc {
	return func(s *Styles) string {
		if len(res) == 0 {
			return s.Muted.Render("nothing to resolve automatically")
		}
		var b strings.Builder
		for _, r := range res {
			state := s.Muted.Render("proposed")
			if r.Applied {
				state = s.Success.Render("applied")
			}
			fmt.Fprintf(&b, "%s  %s  %s\n", state, r.Action, r.Details)
			for _, split := range r.SuggestedSplits {
				fmt.Fprintf(&b, "    %s\n", split)
			}
		}
		return b.String()
	}
}

// HealthLine renders a health assessment on one line.
func HealthLine(s *Styles, h conflict.Health) string {
	return fmt.Sprintf("%s %s (%d/100)", s.Label.Render("health:"), s.Level(string(h.Level)), h.Score)
}

// ReportText renders a coordination report.
func ReportText(r *conflict.Report) TextFunc {
	return func(s *Styles) string {
		var b strings.Builder
		b.WriteString(s.Title.Render("Coordination report") + "  " + s.Muted.Render(r.Timestamp.Format(time.RFC3339)) + "\n")
		b.WriteString(HealthLine(s, r.SystemHealth) + "\n")
		fmt.Fprintf(&b, "sessions %d  locks %d  pending %d  conflicts %d  auto-resolved %d\n",
			r.Summary.ActiveSessions, r.Summary.ActiveLocks, r.Summary.PendingRequests,
			r.Summary.DetectedConflicts, r.Summary.AutoResolutions)
		for _, issue := range r.SystemHealth.Issues {
			fmt.Fprintf(&b, "  - %s\n", issue)
		}
		if len(r.Conflicts) > 0 {
			b.WriteString("\n" + s.Header.Render("Conflicts") + "\n")
			for _, c := range r.Conflicts {
				writeConflict(&b, s, c)
			}
		}
		if len(r.AutoResolutions) > 0 {
			b.WriteString("\n" + s.Header.Render("Automatic resolutions") + "\n")
			b.WriteString(ResolutionsText(r.AutoResolutions)(s))
		}
		writeRecommendations(&b, s, r.Recommendations)
		return b.String()
	}
}

func writeRecommendations(b *strings.Builder, s *Styles, recs []conflict.Recommendation) {
	if len(recs) == 0 {
		return
	}
	b.WriteString("\n" + s.Header.Render("Recommendations") + "\n")
	for _, r := range recs {
		prio := r.Priority
		if prio == "high" {
			prio = s.Error.Render(prio)
		}
		fmt.Fprintf(b, "  [%s] %s: %s\n", prio, r.Message, r.Action)
	}
}

// CoordinationText renders one coordination with its messages.
func CoordinationText(c *registry.Coordination) TextFunc {
	return func(s *Styles) string {
		var b strings.Builder
		fmt.Fprintf(&b, "%s  %s  %s\n", s.Title.Render(c.ID), c.Type, s.Level(string(c.Status)))
		fmt.Fprintf(&b, "%s %s\n", s.Label.Render("sessions:"), strings.Join(c.Sessions, ", "))
		for _, m := range c.Messages {
			fmt.Fprintf(&b, "  %s %s [%s] %s\n", s.Muted.Render(m.Timestamp.Format(time.TimeOnly)), m.FromSession, m.Type, m.Message)
		}
		if r := c.Resolution; r != nil {
			fmt.Fprintf(&b, "%s %s by %s\n", s.Label.Render("resolved:"), r.Approach, r.ResolvedBy)
		}
		return b.String()
	}
}

// CoordinationStatusText renders the coordination system view.
func CoordinationStatusText(st *coordination.Status) TextFunc {
	return func(s *Styles) string {
		var b strings.Builder
		o := st.Overview
		b.WriteString(s.Title.Render("Coordination") + "\n")
		b.WriteString(HealthLine(s, o.SystemHealth) + "\n")
		fmt.Fprintf(&b, "sessions %d  conflicts %d  active coordinations %d\n",
			o.ActiveSessions, o.ActiveConflicts, o.ActiveCoordinations)

		ids := make([]string, 0, len(st.Coordinations))
		for id := range st.Coordinations {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			c := st.Coordinations[id]
			fmt.Fprintf(&b, "  %s  %s  %s  %s\n", id, c.Type, s.Level(string(c.Status)), strings.Join(c.Sessions, ", "))
		}
		if len(st.Conflicts) > 0 {
			b.WriteString("\n" + s.Header.Render("Conflicts") + "\n")
			for _, c := range st.Conflicts {
				writeConflict(&b, s, c)
			}
		}
		if len(st.RecentActivity) > 0 {
			b.WriteString("\n" + s.Header.Render("Recent activity") + "\n")
			for _, e := range st.RecentActivity {
				fmt.Fprintf(&b, "  %s  %-22s %s\n", s.Muted.Render(e.Timestamp.Format(time.TimeOnly)), e.Action, e.Details)
			}
		}
		return b.String()
	}
}

// Age formats the time elapsed since t, rounded for display.
func Age(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// ShortRev abbreviates a revision digest.
func ShortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func orNone(s string) string {
	if s == "" {
		return "nobody"
	}
	return s
}
