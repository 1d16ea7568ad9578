// Package session creates and ends sub-sessions.
//
// A session is created with its access mode and path lists and is destroyed
// by End, which first releases every lock it holds and expires every
// pending permission request it owns. Nothing expires a session on its own;
// Sweep is the maintenance pass that ends stale and expired sessions.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/filelock"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/permission"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// DefaultEndReason is used when End is called without a reason.
const DefaultEndReason = "Session completed"

// DefaultStaleAfter is the inactivity after which Sweep ends a session.
const DefaultStaleAfter = 2 * time.Hour

// CreateOptions are the inputs to Create.
type CreateOptions struct {
	MainAgent          string
	SubAgent           string
	TaskScope          string
	TaskType           string              // id segment, default "sub-task"
	AccessMode         registry.AccessMode // default restricted
	AllowedPaths       []string
	DeniedPaths        []string
	ParentBranch       string
	SubBranch          string
	RelatedMainSession string
	AutoExpiry         *time.Time
}

// EndResult reports what End released.
type EndResult struct {
	Success         bool     `json:"success"`
	SessionID       string   `json:"sessionId"`
	Reason          string   `json:"reason"`
	ReleasedLocks   []string `json:"releasedLocks"`
	ExpiredRequests []string `json:"expiredRequests"`
}

// Manager owns the session lifecycle.
type Manager struct {
	store      *registry.Store
	bus        *event.Bus
	logger     *logging.Logger
	now        func() time.Time
	staleAfter time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus sets the bus that receives session events.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the clock used for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithStaleAfter sets the inactivity threshold used by Sweep.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) { m.staleAfter = d }
}

// NewManager creates a Manager backed by store.
func NewManager(store *registry.Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		logger:     logging.NopLogger(),
		now:        time.Now,
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("session")
	return m
}

// Create validates opts, records a new session and returns it.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*registry.Session, error) {
	if opts.MainAgent == "" {
		return nil, apperrors.NewValidationError("main agent id cannot be empty").WithField("mainAgent")
	}
	if opts.SubAgent == "" {
		return nil, apperrors.NewValidationError("sub-agent id cannot be empty").WithField("subAgent")
	}
	if opts.AccessMode == "" {
		opts.AccessMode = registry.ModeRestricted
	}
	if !opts.AccessMode.Valid() {
		return nil, apperrors.NewValidationError("invalid access mode").
			WithField("accessMode").
			WithValue(string(opts.AccessMode))
	}

	var sess *registry.Session
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		now := m.now().UTC()

		id := NewID(opts.SubAgent, opts.TaskType, now)
		for reg.Sessions[id] != nil {
			id = NewID(opts.SubAgent, opts.TaskType, now)
		}

		sess = &registry.Session{
			ID:                 id,
			MainAgent:          opts.MainAgent,
			SubAgent:           opts.SubAgent,
			StartTime:          now,
			LastActivity:       now,
			AccessMode:         opts.AccessMode,
			AllowedPaths:       append([]string{}, opts.AllowedPaths...),
			DeniedPaths:        append([]string{}, opts.DeniedPaths...),
			LockAcquisitions:   []string{},
			PermissionRequests: []string{},
			CoordinationData: registry.CoordinationData{
				RelatedMainSession: opts.RelatedMainSession,
				TaskScope:          opts.TaskScope,
				ParentBranch:       opts.ParentBranch,
				SubBranch:          opts.SubBranch,
			},
			AutoExpiry: opts.AutoExpiry,
		}
		reg.Sessions[id] = sess
		reg.AddHistory(now, registry.ActionSessionCreated, id, "",
			fmt.Sprintf("Sub-session created for %s by %s", opts.SubAgent, opts.MainAgent))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithSession(sess.ID).Info("session created",
		"main_agent", sess.MainAgent,
		"sub_agent", sess.SubAgent,
		"access_mode", string(sess.AccessMode),
		"task_scope", sess.CoordinationData.TaskScope,
	)
	m.bus.Publish(event.NewSessionCreatedEvent(sess.ID, sess.MainAgent, sess.SubAgent, sess.AccessMode))
	return sess, nil
}

// End releases the session's locks, expires its pending requests and
// removes it. An unknown session id is an error.
func (m *Manager) End(ctx context.Context, sessionID, reason string) (*EndResult, error) {
	if reason == "" {
		reason = DefaultEndReason
	}

	var res *EndResult
	var releaseErrs []error
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		if _, ok := reg.Session(sessionID); !ok {
			return apperrors.NewNotFoundError("session", sessionID)
		}
		res, releaseErrs = endIn(reg, m.now().UTC(), sessionID, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.reportEnded(res, releaseErrs)
	return res, nil
}

// endIn removes a session that is known to exist from a loaded registry.
// Release failures are returned as SessionErrors for logging and do not
// stop the cascade.
func endIn(reg *registry.Registry, now time.Time, sessionID, reason string) (*EndResult, []error) {
	released, releaseErrs := filelock.ReleaseAll(reg, now, sessionID)
	errs := make([]error, 0, len(releaseErrs))
	for _, err := range releaseErrs {
		errs = append(errs, apperrors.NewSessionError("release lock during session end", err).WithSessionID(sessionID))
	}
	expired := permission.ExpireForSession(reg, now, sessionID)

	delete(reg.Sessions, sessionID)
	reg.AddHistory(now, registry.ActionSessionEnded, sessionID, "", reason)

	if released == nil {
		released = []string{}
	}
	if expired == nil {
		expired = []string{}
	}
	return &EndResult{
		Success:         true,
		SessionID:       sessionID,
		Reason:          reason,
		ReleasedLocks:   released,
		ExpiredRequests: expired,
	}, errs
}

func (m *Manager) reportEnded(res *EndResult, releaseErrs []error) {
	log := m.logger.WithSession(res.SessionID)
	for _, err := range releaseErrs {
		log.Warn("lock release failed during session end", "error", err)
	}
	log.Info("session ended",
		"reason", res.Reason,
		"released_locks", len(res.ReleasedLocks),
		"expired_requests", len(res.ExpiredRequests),
	)
	m.bus.Publish(event.NewSessionEndedEvent(res.SessionID, res.Reason, res.ReleasedLocks, res.ExpiredRequests))
}

// Get returns one session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*registry.Session, error) {
	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := reg.Session(sessionID)
	if !ok {
		return nil, apperrors.NewNotFoundError("session", sessionID)
	}
	return sess, nil
}

// List returns all active sessions, oldest first.
func (m *Manager) List(ctx context.Context) ([]*registry.Session, error) {
	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*registry.Session, 0, len(reg.Sessions))
	for _, s := range reg.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
