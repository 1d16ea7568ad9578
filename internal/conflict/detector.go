package conflict

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/permission"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Journal records coordination activity outside the registry document.
type Journal interface {
	Record(ctx context.Context, action, details string, sessionIDs []string, resolution any) error
}

// Detector finds conflicts in the registry and resolves the ones that are
// safe to resolve without a human.
type Detector struct {
	store    *registry.Store
	cfg      *config.Config
	classify *Classifier
	journal  Journal
	bus      *event.Bus
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithConfig sets the detection window, thresholds and path patterns.
func WithConfig(cfg *config.Config) Option {
	return func(d *Detector) {
		if cfg != nil {
			d.cfg = cfg
		}
	}
}

// WithJournal sets where reports are recorded.
func WithJournal(j Journal) Option {
	return func(d *Detector) { d.journal = j }
}

// WithBus sets the bus that receives resolution events.
func WithBus(bus *event.Bus) Option {
	return func(d *Detector) { d.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the clock used for time windows.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a Detector backed by store. It fails only when the
// configured path patterns do not compile.
func NewDetector(store *registry.Store, opts ...Option) (*Detector, error) {
	d := &Detector{
		store:  store,
		cfg:    config.Default(),
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("conflict")

	c, err := NewClassifier(d.cfg.Conflict.DocumentationPatterns, d.cfg.Conflict.SourcePatterns)
	if err != nil {
		return nil, err
	}
	d.classify = c
	return d, nil
}

// Analysis is a read-only view of the registry's conflict state.
type Analysis struct {
	Status          *registry.Status `json:"status"`
	Conflicts       []Conflict       `json:"conflicts"`
	Proposed        []Resolution     `json:"autoResolutions"`
	Health          Health           `json:"systemHealth"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Detect returns every current conflict: file-lock conflicts first, then
// branch conflicts, then resource contention.
func (d *Detector) Detect(ctx context.Context) ([]Conflict, error) {
	reg, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	conflicts := d.detect(reg, d.now().UTC())
	d.logger.Debug("conflicts detected", "count", len(conflicts))
	return conflicts, nil
}

// Analyze loads the registry and evaluates it without changing anything.
func (d *Detector) Analyze(ctx context.Context) (*Analysis, error) {
	reg, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return d.AnalyzeRegistry(reg), nil
}

// AnalyzeRegistry evaluates an already loaded registry.
func (d *Detector) AnalyzeRegistry(reg *registry.Registry) *Analysis {
	now := d.now().UTC()
	st := reg.Status()
	if rev, err := registry.Digest(reg); err == nil {
		st.Revision = rev
	}
	conflicts := d.detect(reg, now)
	return &Analysis{
		Status:          st,
		Conflicts:       conflicts,
		Proposed:        d.plan(reg, conflicts),
		Health:          AssessHealth(st, conflicts, now, d.cfg.Health),
		Recommendations: Recommend(st, conflicts, now, d.cfg.Recommend),
	}
}

// AutoResolve detects conflicts and applies the automatic resolutions:
// pending requests behind documentation contention are approved, and
// documentation file-lock conflicts get a split proposal.
func (d *Detector) AutoResolve(ctx context.Context) ([]Resolution, error) {
	var resolutions []Resolution
	err := d.store.Update(ctx, func(reg *registry.Registry) error {
		now := d.now().UTC()
		resolutions = d.plan(reg, d.detect(reg, now))
		d.apply(reg, now, resolutions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.announce(resolutions)
	return resolutions, nil
}

// Report runs detection and automatic resolution in one registry update
// and records the result in the journal.
func (d *Detector) Report(ctx context.Context) (*Report, error) {
	var report *Report
	err := d.store.Update(ctx, func(reg *registry.Registry) error {
		now := d.now().UTC()
		conflicts := d.detect(reg, now)
		resolutions := d.plan(reg, conflicts)
		d.apply(reg, now, resolutions)

		st := reg.Status()
		report = &Report{
			Timestamp: now,
			Summary: Summary{
				ActiveSessions:    st.TotalActiveSessions,
				ActiveLocks:       st.TotalActiveLocks,
				PendingRequests:   st.TotalPendingRequests,
				DetectedConflicts: len(conflicts),
				AutoResolutions:   len(resolutions),
			},
			Conflicts:       conflicts,
			AutoResolutions: resolutions,
			Recommendations: Recommend(st, conflicts, now, d.cfg.Recommend),
			SystemHealth:    AssessHealth(st, conflicts, now, d.cfg.Health),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.announce(report.AutoResolutions)
	d.logger.Info("coordination report generated",
		"conflicts", report.Summary.DetectedConflicts,
		"auto_resolutions", report.Summary.AutoResolutions,
		"health_score", report.SystemHealth.Score,
		"health_level", string(report.SystemHealth.Level),
	)

	if d.journal != nil {
		if jerr := d.journal.Record(ctx, "coordination-report", "System-wide coordination analysis", []string{}, report.AutoResolutions); jerr != nil {
			d.logger.Warn("failed to record coordination report", "error", jerr)
		}
	}
	return report, nil
}

func (d *Detector) detect(reg *registry.Registry, now time.Time) []Conflict {
	conflicts := []Conflict{}
	conflicts = append(conflicts, d.fileLockConflicts(reg, now)...)
	conflicts = append(conflicts, branchConflicts(reg)...)
	conflicts = append(conflicts, d.resourceContention(reg)...)
	return conflicts
}

// fileLockConflicts groups lock-conflict history entries inside the window
// by path. History is newest first, so the first entry per path carries
// the last conflict time.
func (d *Detector) fileLockConflicts(reg *registry.Registry, now time.Time) []Conflict {
	since := now.Add(-d.cfg.Conflict.Window)
	byPath := make(map[string]*Conflict)
	var order []string

	for _, h := range reg.History {
		if h.Action != registry.ActionLockConflict || !h.Timestamp.After(since) {
			continue
		}
		c, ok := byPath[h.FilePath]
		if !ok {
			last := h.Timestamp
			c = &Conflict{
				ID:               string(TypeFileLock) + ":" + h.FilePath,
				Type:             TypeFileLock,
				FilePath:         h.FilePath,
				LastConflictTime: &last,
			}
			if lock, held := reg.FileLocks[h.FilePath]; held {
				c.CurrentLockHolder = lock.LockedBy
			}
			byPath[h.FilePath] = c
			order = append(order, h.FilePath)
		}
		c.ConflictCount++
		if !slices.Contains(c.InvolvedSessions, h.SessionID) {
			c.InvolvedSessions = append(c.InvolvedSessions, h.SessionID)
		}
	}

	sort.Strings(order)
	out := make([]Conflict, 0, len(order))
	for _, path := range order {
		c := byPath[path]
		c.SuggestedResolution = d.classify.suggestFileLock(path)
		out = append(out, *c)
	}
	return out
}

// branchConflicts reports each parent branch shared by more than one
// session once. The earliest started session is the primary.
func branchConflicts(reg *registry.Registry) []Conflict {
	groups := make(map[string][]*registry.Session)
	for _, s := range reg.Sessions {
		if b := s.CoordinationData.ParentBranch; b != "" {
			groups[b] = append(groups[b], s)
		}
	}

	branches := make([]string, 0, len(groups))
	for b, members := range groups {
		if len(members) > 1 {
			branches = append(branches, b)
		}
	}
	sort.Strings(branches)

	out := make([]Conflict, 0, len(branches))
	for _, b := range branches {
		members := groups[b]
		sort.Slice(members, func(i, j int) bool {
			if !members[i].StartTime.Equal(members[j].StartTime) {
				return members[i].StartTime.Before(members[j].StartTime)
			}
			return members[i].ID < members[j].ID
		})
		others := make([]string, 0, len(members)-1)
		for _, s := range members[1:] {
			others = append(others, s.ID)
		}
		out = append(out, Conflict{
			ID:                  string(TypeBranch) + ":" + b,
			Type:                TypeBranch,
			ParentBranch:        b,
			PrimarySession:      members[0].ID,
			ConflictingSessions: others,
			SuggestedResolution: suggestBranch(),
		})
	}
	return out
}

type contentionKey struct {
	session  string
	resource string
}

// resourceContention counts requests of any status per (session, resource)
// pair and reports pairs above the threshold.
func (d *Detector) resourceContention(reg *registry.Registry) []Conflict {
	counts := make(map[contentionKey]int)
	for _, req := range reg.Requests {
		counts[contentionKey{req.SessionID, req.RequestedResource}]++
	}

	var keys []contentionKey
	for k, n := range counts {
		if n > d.cfg.Conflict.ContentionThreshold {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].session != keys[j].session {
			return keys[i].session < keys[j].session
		}
		return keys[i].resource < keys[j].resource
	})

	out := make([]Conflict, 0, len(keys))
	for _, k := range keys {
		out = append(out, Conflict{
			ID:                  string(TypeResourceContention) + ":" + k.session + ":" + k.resource,
			Type:                TypeResourceContention,
			SessionID:           k.session,
			ResourcePath:        k.resource,
			RequestCount:        counts[k],
			SuggestedResolution: suggestContention(),
		})
	}
	return out
}

// plan computes automatic resolutions without changing reg.
func (d *Detector) plan(reg *registry.Registry, conflicts []Conflict) []Resolution {
	out := []Resolution{}
	for _, c := range conflicts {
		switch c.Type {
		case TypeResourceContention:
			if !d.classify.Documentation(c.ResourcePath) {
				continue
			}
			var pending []string
			for _, req := range reg.RequestsByStatus(registry.StatusPending) {
				if req.SessionID == c.SessionID && req.RequestedResource == c.ResourcePath {
					pending = append(pending, req.ID)
				}
			}
			out = append(out, Resolution{
				Success:          true,
				ConflictID:       c.ID,
				Action:           ActionDocumentationAccess,
				Details:          "Auto-approved access to " + c.ResourcePath + " for documentation work",
				ApprovedRequests: pending,
			})
		case TypeFileLock:
			if !d.classify.Documentation(c.FilePath) {
				continue
			}
			out = append(out, Resolution{
				Success:         true,
				ConflictID:      c.ID,
				Action:          ActionDocumentationSplit,
				Details:         "Suggest splitting " + c.FilePath + " into separate sections for parallel work",
				SuggestedSplits: splitNames(c.FilePath),
			})
		}
	}
	return out
}

// apply approves the requests named by documentation access resolutions.
// Requests that can no longer be approved are dropped from the resolution.
func (d *Detector) apply(reg *registry.Registry, now time.Time, resolutions []Resolution) {
	for i := range resolutions {
		r := &resolutions[i]
		if r.Action != ActionDocumentationAccess {
			continue
		}
		approved := []string{}
		for _, id := range r.ApprovedRequests {
			if _, err := permission.ApproveRequest(reg, now, id, permission.ResponderAutoResolution, r.Details); err != nil {
				d.logger.Warn("auto-resolution skipped request", "request_id", id, "error", err)
				continue
			}
			approved = append(approved, id)
		}
		r.ApprovedRequests = approved
		r.Applied = true
	}
}

func (d *Detector) announce(resolutions []Resolution) {
	var conflictIDs, requestIDs []string
	for _, r := range resolutions {
		if !r.Applied || len(r.ApprovedRequests) == 0 {
			continue
		}
		conflictIDs = append(conflictIDs, r.ConflictID)
		requestIDs = append(requestIDs, r.ApprovedRequests...)
	}
	if len(requestIDs) == 0 {
		return
	}
	d.logger.Info("conflicts auto-resolved",
		"conflicts", len(conflictIDs),
		"approved_requests", len(requestIDs),
	)
	d.bus.Publish(event.NewConflictsResolvedEvent(conflictIDs, requestIDs))
}
