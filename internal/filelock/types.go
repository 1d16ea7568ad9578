package filelock

import (
	"errors"
	"time"

	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Sentinel errors returned by Release.
var (
	// ErrNotLocked is returned when releasing a path that has no lock.
	ErrNotLocked = errors.New("file is not locked")

	// ErrNotHolder is returned when a session releases a lock it neither
	// owns nor co-reads.
	ErrNotHolder = errors.New("session does not hold this lock")
)

// Result is the outcome of an acquisition attempt.
type Result struct {
	Success      bool              `json:"success"`
	FilePath     string            `json:"filePath"`
	LockType     registry.LockType `json:"lockType"`
	Shared       bool              `json:"shared,omitempty"`
	Upgraded     bool              `json:"upgraded,omitempty"`
	Conflict     bool              `json:"conflict,omitempty"`
	ConflictWith string            `json:"conflictWith,omitempty"`
	ConflictType registry.LockType `json:"conflictType,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

// ReleaseResult is the outcome of a release.
type ReleaseResult struct {
	Success    bool   `json:"success"`
	FilePath   string `json:"filePath"`
	PromotedTo string `json:"promotedTo,omitempty"`
	Removed    bool   `json:"removed"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus sets the bus that receives lock events.
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

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}
