package filelock

import (
	"context"
	"time"

	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Manager acquires and releases locks in the registry document.
type Manager struct {
	store  *registry.Store
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time
}

// NewManager creates a Manager backed by store.
func NewManager(store *registry.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("filelock")
	return m
}

// Acquire requests a lock on path for sessionID. A conflict is reported in
// the Result and still persisted as a lock-conflict history entry. An
// unknown session or invalid lock type is an error.
func (m *Manager) Acquire(ctx context.Context, sessionID, path string, lockType registry.LockType, reason string, related []string) (*Result, error) {
	req := Request{
		SessionID:    sessionID,
		FilePath:     path,
		LockType:     lockType,
		Reason:       reason,
		RelatedFiles: related,
	}

	var res *Result
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		var err error
		res, err = acquire(reg, m.now().UTC(), req)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := m.logger.WithSession(sessionID)
	switch {
	case res.Conflict:
		log.Warn("lock conflict",
			"file_path", path,
			"lock_type", string(lockType),
			"conflict_with", res.ConflictWith,
			"conflict_type", string(res.ConflictType),
		)
		m.bus.Publish(event.NewLockConflictEvent(sessionID, path, res.ConflictWith, res.ConflictType))
	default:
		log.Info("lock acquired",
			"file_path", path,
			"lock_type", string(res.LockType),
			"shared", res.Shared,
			"upgraded", res.Upgraded,
		)
		m.bus.Publish(event.NewLockAcquiredEvent(sessionID, path, res.LockType, res.Shared))
	}
	return res, nil
}

// Release gives up sessionID's hold on path. It returns ErrNotLocked or
// ErrNotHolder (wrapped) when the session holds nothing there.
func (m *Manager) Release(ctx context.Context, sessionID, path string) (*ReleaseResult, error) {
	var res *ReleaseResult
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		var err error
		res, err = release(reg, m.now().UTC(), sessionID, path)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithSession(sessionID).Info("lock released",
		"file_path", path,
		"promoted_to", res.PromotedTo,
		"removed", res.Removed,
	)
	m.bus.Publish(event.NewLockReleasedEvent(sessionID, path, res.PromotedTo, res.Removed))
	return res, nil
}

// Prune drops lock holders that are no longer active sessions and returns
// the affected paths. With dryRun nothing is saved.
func (m *Manager) Prune(ctx context.Context, dryRun bool) ([]string, error) {
	var changed []string
	prune := func(reg *registry.Registry) error {
		changed = PruneOrphans(reg, m.now().UTC())
		return nil
	}

	var err error
	if dryRun {
		err = m.store.View(ctx, prune)
	} else {
		err = m.store.Update(ctx, prune)
	}
	if err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []string{}
	}
	if len(changed) > 0 && !dryRun {
		m.logger.Warn("orphaned locks pruned", "paths", changed)
	}
	return changed, nil
}

// Lock returns the lock record on path, if any.
func (m *Manager) Lock(ctx context.Context, path string) (*registry.FileLock, bool, error) {
	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	lock, ok := reg.FileLocks[path]
	return lock, ok, nil
}

// Locks returns every lock record keyed by path.
func (m *Manager) Locks(ctx context.Context) (map[string]*registry.FileLock, error) {
	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return reg.FileLocks, nil
}
