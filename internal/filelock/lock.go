package filelock

import (
	"fmt"
	"slices"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Request describes one acquisition.
type Request struct {
	SessionID    string
	FilePath     string
	LockType     registry.LockType
	Reason       string
	RelatedFiles []string
}

// ConflictReason is the human-readable reason attached to a refused lock.
func ConflictReason(path, holder string) string {
	return fmt.Sprintf("File lock conflict: %s is locked by %s", path, holder)
}

// acquire applies req to a loaded registry.
func acquire(reg *registry.Registry, now time.Time, req Request) (*Result, error) {
	if req.FilePath == "" {
		return nil, apperrors.NewValidationError("file path cannot be empty").WithField("filePath")
	}
	if !req.LockType.Valid() {
		return nil, apperrors.NewValidationError("invalid lock type").
			WithField("lockType").
			WithValue(string(req.LockType))
	}
	sess, ok := reg.Session(req.SessionID)
	if !ok {
		return nil, apperrors.NewNotFoundError("session", req.SessionID)
	}

	res := &Result{FilePath: req.FilePath, LockType: req.LockType}
	existing, locked := reg.FileLocks[req.FilePath]

	switch {
	case !locked:
		related := req.RelatedFiles
		if related == nil {
			related = []string{}
		}
		reg.FileLocks[req.FilePath] = &registry.FileLock{
			LockedBy:     req.SessionID,
			LockType:     req.LockType,
			AcquiredAt:   now,
			Reason:       req.Reason,
			RelatedFiles: related,
		}
		holdPath(sess, req.FilePath)
		sess.Touch(now)
		reg.AddHistory(now, registry.ActionAcquire, req.SessionID, req.FilePath, req.Reason)
		res.Success = true
		return res, nil

	case existing.HeldBy(req.SessionID):
		return reacquire(reg, now, sess, existing, req, res), nil

	case existing.LockType == registry.LockRead && req.LockType == registry.LockRead:
		existing.CoReaders = append(existing.CoReaders, req.SessionID)
		holdPath(sess, req.FilePath)
		sess.Touch(now)
		reg.AddHistory(now, registry.ActionReadLockShared, req.SessionID, req.FilePath, "Shared with "+existing.LockedBy)
		res.Success = true
		res.Shared = true
		return res, nil
	}

	return conflict(reg, now, req, existing.LockedBy, existing.LockType, res), nil
}

// reacquire handles a session asking again for a lock it already holds.
// Asking for the same or a weaker type is a no-op; a sole holder may
// upgrade; a shared holder asking for more conflicts with the other holders.
func reacquire(reg *registry.Registry, now time.Time, sess *registry.Session, existing *registry.FileLock, req Request, res *Result) *Result {
	sess.Touch(now)
	holdPath(sess, req.FilePath)

	if strength(req.LockType) <= strength(existing.LockType) {
		res.Success = true
		res.LockType = existing.LockType
		res.Shared = existing.LockedBy != req.SessionID
		return res
	}

	if existing.LockedBy == req.SessionID && len(existing.CoReaders) == 0 {
		existing.LockType = req.LockType
		if req.Reason != "" {
			existing.Reason = req.Reason
		}
		reg.AddHistory(now, registry.ActionAcquire, req.SessionID, req.FilePath,
			fmt.Sprintf("upgraded to %s lock", req.LockType))
		res.Success = true
		res.Upgraded = true
		return res
	}

	for _, holder := range existing.Holders() {
		if holder != req.SessionID {
			return conflict(reg, now, req, holder, existing.LockType, res)
		}
	}
	return conflict(reg, now, req, existing.LockedBy, existing.LockType, res)
}

func conflict(reg *registry.Registry, now time.Time, req Request, holder string, held registry.LockType, res *Result) *Result {
	reg.AddHistory(now, registry.ActionLockConflict, req.SessionID, req.FilePath,
		fmt.Sprintf("Blocked by %s (%s lock, requested %s)", holder, held, req.LockType))
	res.Conflict = true
	res.ConflictWith = holder
	res.ConflictType = held
	res.Reason = ConflictReason(req.FilePath, holder)
	return res
}

// release removes sessionID from the lock on path.
func release(reg *registry.Registry, now time.Time, sessionID, path string) (*ReleaseResult, error) {
	lock, ok := reg.FileLocks[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, path)
	}
	if !lock.HeldBy(sessionID) {
		return nil, fmt.Errorf("%w: %s is held by %s", ErrNotHolder, path, lock.LockedBy)
	}

	res := &ReleaseResult{Success: true, FilePath: path}
	if lock.LockedBy == sessionID {
		if len(lock.CoReaders) > 0 {
			// oldest co-reader takes ownership
			lock.LockedBy = lock.CoReaders[0]
			lock.CoReaders = lock.CoReaders[1:]
			res.PromotedTo = lock.LockedBy
		} else {
			delete(reg.FileLocks, path)
			res.Removed = true
		}
	} else {
		lock.CoReaders = slices.DeleteFunc(lock.CoReaders, func(id string) bool { return id == sessionID })
	}
	if lock.CoReaders != nil && len(lock.CoReaders) == 0 {
		lock.CoReaders = nil
	}

	if sess, ok := reg.Session(sessionID); ok {
		sess.LockAcquisitions = slices.DeleteFunc(sess.LockAcquisitions, func(p string) bool { return p == path })
		sess.Touch(now)
	}

	details := ""
	if res.PromotedTo != "" {
		details = "ownership passed to " + res.PromotedTo
	}
	reg.AddHistory(now, registry.ActionRelease, sessionID, path, details)
	return res, nil
}

// ReleaseAll releases every lock held by sessionID, including lock records
// that name the session but are missing from its held-lock list. Failures
// are collected and do not stop the remaining releases.
func ReleaseAll(reg *registry.Registry, now time.Time, sessionID string) ([]string, []error) {
	var paths []string
	if sess, ok := reg.Session(sessionID); ok {
		paths = append(paths, sess.LockAcquisitions...)
	}
	for _, p := range reg.LockPaths() {
		if reg.FileLocks[p].HeldBy(sessionID) && !slices.Contains(paths, p) {
			paths = append(paths, p)
		}
	}

	var released []string
	var errs []error
	for _, p := range paths {
		if _, err := release(reg, now, sessionID, p); err != nil {
			errs = append(errs, err)
			continue
		}
		released = append(released, p)
	}
	if sess, ok := reg.Session(sessionID); ok {
		sess.LockAcquisitions = []string{}
	}
	return released, errs
}

// PruneOrphans drops holders that are no longer active sessions and
// returns the paths whose lock records changed.
func PruneOrphans(reg *registry.Registry, now time.Time) []string {
	var changed []string
	for _, p := range reg.LockPaths() {
		lock := reg.FileLocks[p]
		touched := false
		for _, holder := range lock.Holders() {
			if _, ok := reg.Session(holder); ok {
				continue
			}
			if _, err := release(reg, now, holder, p); err == nil {
				touched = true
			}
		}
		if touched {
			changed = append(changed, p)
		}
	}
	return changed
}

func strength(t registry.LockType) int {
	switch t {
	case registry.LockExclusive:
		return 2
	case registry.LockWrite:
		return 1
	}
	return 0
}

func holdPath(sess *registry.Session, path string) {
	if !sess.HoldsLock(path) {
		sess.LockAcquisitions = append(sess.LockAcquisitions, path)
	}
}
