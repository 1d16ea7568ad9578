package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/logging"
)

// lockRetryInterval is how often a blocked process re-checks the lock file.
const lockRetryInterval = 15 * time.Millisecond

// lockOwner is the content of the cooperative lock file.
type lockOwner struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// fileLock is a held cooperative lock around one load-mutate-save cycle.
type fileLock struct {
	path  string
	owner lockOwner
}

// acquireFileLock creates path with O_EXCL, retrying until timeout or ctx
// is done. A lock whose owner process is gone, or which is older than
// staleAfter, is removed and the attempt is retried.
func acquireFileLock(ctx context.Context, path string, timeout, staleAfter time.Duration, logger *logging.Logger) (*fileLock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	owner := lockOwner{PID: os.Getpid(), Hostname: hostname}

	deadline := time.Now().Add(timeout)
	for {
		owner.AcquiredAt = time.Now()
		data, err := json.Marshal(owner)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lock: %w", err)
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, apperrors.NewPersistenceError("failed to write lock file", apperrors.Join(werr, cerr)).WithPath(path)
			}
			return &fileLock{path: path, owner: owner}, nil
		}
		if !os.IsExist(err) {
			return nil, apperrors.NewPersistenceError("failed to create lock file", err).WithPath(path)
		}

		existing, readErr := readLockOwner(path)
		switch {
		case readErr == nil && isStale(existing, staleAfter):
			if rmErr := os.Remove(path); rmErr == nil {
				logger.Warn("stale registry lock cleaned",
					"path", path,
					"old_pid", existing.PID,
					"old_host", existing.Hostname,
				)
			}
			continue
		case readErr != nil && !os.IsNotExist(readErr) && olderThan(path, staleAfter):
			// unreadable lock left behind by a process that died mid-write
			if rmErr := os.Remove(path); rmErr == nil {
				logger.Warn("unreadable registry lock cleaned", "path", path, "error", readErr)
			}
			continue
		case os.IsNotExist(readErr):
			continue
		}

		if time.Now().After(deadline) {
			holder := "unknown process"
			if existing, readErr := readLockOwner(path); readErr == nil {
				holder = fmt.Sprintf("PID %d on %s", existing.PID, existing.Hostname)
			}
			return nil, apperrors.NewTimeoutError("acquire registry lock", timeout).
				WithCause(fmt.Errorf("%w: %s", apperrors.ErrLockBusy, holder))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// WithLockFile runs fn while holding the cooperative lock file at
// lockPath. It is used for documents stored next to the registry that need
// the same load-mutate-save discipline.
func WithLockFile(ctx context.Context, lockPath string, timeout, staleAfter time.Duration, logger *logging.Logger, fn func() error) error {
	if logger == nil {
		logger = logging.NopLogger()
	}
	lock, err := acquireFileLock(ctx, lockPath, timeout, staleAfter, logger)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.release(); rerr != nil {
			logger.Warn("failed to release lock file", "path", lockPath, "error", rerr)
		}
	}()
	return fn()
}

// release removes the lock file if it still belongs to this holder.
func (l *fileLock) release() error {
	if l == nil {
		return nil
	}
	existing, err := readLockOwner(l.path)
	if err != nil {
		return nil
	}
	if existing.PID != l.owner.PID || !existing.AcquiredAt.Equal(l.owner.AcquiredAt) {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func readLockOwner(path string) (*lockOwner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &owner, nil
}

// isStale treats a lock as abandoned when its process is gone on this host
// or when it has been held longer than staleAfter.
func isStale(owner *lockOwner, staleAfter time.Duration) bool {
	if staleAfter > 0 && time.Since(owner.AcquiredAt) > staleAfter {
		return true
	}
	hostname, _ := os.Hostname()
	if owner.Hostname == hostname && !isProcessAlive(owner.PID) {
		return true
	}
	return false
}

func olderThan(path string, d time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > d
}

// isProcessAlive checks whether a process with pid exists.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 probes for existence without delivering anything
	return process.Signal(syscall.Signal(0)) == nil
}
