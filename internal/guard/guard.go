// Package guard validates agent tool operations before they run. It maps an
// operation to the paths it touches, checks each path with the access
// evaluator, and takes a write lock for mutating operations.
package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/filelock"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Reasons reported by Validate.
const (
	ReasonMainAgent = "Main agent - unrestricted access"
	ReasonValidated = "All file operations validated"
)

// SuggestedAction tells a denied agent how to proceed.
type SuggestedAction struct {
	Command              string `json:"command"`
	Description          string `json:"description"`
	AutoRequestAvailable bool   `json:"autoRequestAvailable"`
}

// PathResult is the check outcome for one path.
type PathResult struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Locked  bool   `json:"locked,omitempty"`
}

// Result is the outcome of validating one operation.
type Result struct {
	Allowed          bool             `json:"allowed"`
	Reason           string           `json:"reason"`
	AutoLockAcquired bool             `json:"autoLockAcquired,omitempty"`
	FilePath         string           `json:"filePath,omitempty"`
	ConflictWith     string           `json:"conflictWith,omitempty"`
	SuggestedAction  *SuggestedAction `json:"suggestedAction,omitempty"`
	ValidatedPaths   []PathResult     `json:"validatedPaths,omitempty"`
}

// Guard validates operations for sub-sessions.
type Guard struct {
	evaluator *access.Evaluator
	locks     *filelock.Manager
	logger    *logging.Logger
	workDir   string
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithWorkDir sets the directory relative paths resolve against. The
// process working directory is used otherwise.
func WithWorkDir(dir string) Option {
	return func(g *Guard) { g.workDir = dir }
}

// New creates a Guard.
func New(evaluator *access.Evaluator, locks *filelock.Manager, opts ...Option) *Guard {
	g := &Guard{
		evaluator: evaluator,
		locks:     locks,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent("guard")
	return g
}

// Validate checks op for sessionID. An empty session id is the main agent
// and is never restricted. Paths are checked in order and the first denial
// or lock conflict ends validation. Locks taken for earlier paths are kept.
func (g *Guard) Validate(ctx context.Context, sessionID string, op access.Operation, params Params) (*Result, error) {
	if sessionID == "" {
		return &Result{Allowed: true, Reason: ReasonMainAgent}, nil
	}

	log := g.logger.WithSession(sessionID)
	res := &Result{Allowed: true, Reason: ReasonValidated, ValidatedPaths: []PathResult{}}

	for _, p := range ExtractPaths(op, params) {
		abs, err := g.resolve(p)
		if err != nil {
			return nil, err
		}

		d, err := g.evaluator.Check(ctx, sessionID, abs, op)
		if err != nil {
			return nil, err
		}
		pr := PathResult{Path: abs, Allowed: d.Allowed, Reason: d.Reason}
		if !d.Allowed {
			log.Info("operation denied", "operation", string(op), "file_path", abs, "reason", d.Reason)
			res.ValidatedPaths = append(res.ValidatedPaths, pr)
			res.Allowed = false
			res.Reason = fmt.Sprintf("Access denied to %s: %s", abs, d.Reason)
			res.FilePath = abs
			res.SuggestedAction = permissionSuggestion(sessionID, abs, op)
			return res, nil
		}

		if locksFor(op) {
			lr, err := g.locks.Acquire(ctx, sessionID, abs, registry.LockWrite, fmt.Sprintf("%s operation", op), nil)
			if err != nil {
				return nil, err
			}
			if !lr.Success {
				log.Info("operation blocked by lock", "file_path", abs, "conflict_with", lr.ConflictWith)
				res.ValidatedPaths = append(res.ValidatedPaths, pr)
				res.Allowed = false
				res.Reason = filelock.ConflictReason(abs, lr.ConflictWith)
				res.FilePath = abs
				res.ConflictWith = lr.ConflictWith
				res.SuggestedAction = &SuggestedAction{
					Description: fmt.Sprintf("Wait for lock release or coordinate with session %s", lr.ConflictWith),
				}
				return res, nil
			}
			pr.Locked = true
			res.AutoLockAcquired = true
		}
		res.ValidatedPaths = append(res.ValidatedPaths, pr)
	}

	log.Debug("operation validated", "operation", string(op), "paths", len(res.ValidatedPaths))
	return res, nil
}

func (g *Guard) resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	base := g.workDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", p, err)
		}
		base = wd
	}
	return filepath.Join(base, p), nil
}

// locksFor reports whether op takes a write lock. Delete is checked but not
// locked.
func locksFor(op access.Operation) bool {
	switch op {
	case access.OpWrite, access.OpCreate, access.OpEdit:
		return true
	}
	return false
}

func permissionSuggestion(sessionID, path string, op access.Operation) *SuggestedAction {
	return &SuggestedAction{
		Command: fmt.Sprintf("subsession permission request %s %s --type %s --reason %q",
			sessionID, path, registry.RequestFileAccess, fmt.Sprintf("Required for %s operation", op)),
		Description:          fmt.Sprintf("Request permission to %s %s", op, path),
		AutoRequestAvailable: true,
	}
}
