// Package access decides whether a sub-session may touch a path.
//
// Rules are evaluated in a fixed order and the first match wins: unknown
// session, denied paths, allowed paths, then the session's access mode.
// Path rules match by substring containment, so an allowed entry "/src/"
// also admits "/src/../../etc/passwd". The check is kept this loose on
// purpose so that existing allow and deny lists keep their meaning; callers
// that need segment-aware matching must normalize paths before asking.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Operation is the kind of file operation being checked. The evaluator
// records it but the decision does not depend on it.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
	OpGlob   Operation = "glob"
	OpBash   Operation = "bash"
)

// Mutating reports whether op changes file content.
func (op Operation) Mutating() bool {
	switch op {
	case OpWrite, OpCreate, OpEdit, OpDelete:
		return true
	}
	return false
}

// ParseOperation converts s into an Operation.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpRead, OpWrite, OpCreate, OpEdit, OpDelete, OpGlob, OpBash:
		return op, nil
	}
	return "", fmt.Errorf("invalid operation %q (want read, write, create, edit, delete, glob or bash)", s)
}

// Decision reasons.
const (
	ReasonSessionNotFound = "Session not found"
	ReasonDenied          = "Explicitly denied path"
	ReasonAllowed         = "Explicitly allowed path"
	ReasonRestricted      = "Restricted mode - request permission"
	ReasonCritical        = "Critical system file - requires permission"
	ReasonExpanded        = "Expanded mode default access"
	ReasonCustom          = "Custom mode - specific rules not implemented"
)

// Decision is the result of an access check. A denial is a normal result,
// not an error.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	Operation Operation `json:"operation,omitempty"`
	Matched   string    `json:"matched,omitempty"` // list entry that decided, if any
}

// Policy holds the mode defaults that are not stored per session.
type Policy struct {
	// CriticalPaths are denied in expanded mode unless explicitly allowed.
	CriticalPaths []string
}

// DefaultPolicy returns the built-in critical path list.
func DefaultPolicy() Policy {
	return Policy{CriticalPaths: config.DefaultCriticalPaths()}
}

// Evaluate applies the rules to a session already loaded from the registry.
// A nil session is treated as unknown.
func (p Policy) Evaluate(sess *registry.Session, path string, op Operation) Decision {
	d := Decision{Operation: op}

	if sess == nil {
		d.Reason = ReasonSessionNotFound
		return d
	}
	if m, ok := matchAny(path, sess.DeniedPaths); ok {
		d.Reason = ReasonDenied
		d.Matched = m
		return d
	}
	if m, ok := matchAny(path, sess.AllowedPaths); ok {
		d.Allowed = true
		d.Reason = ReasonAllowed
		d.Matched = m
		return d
	}

	switch sess.AccessMode {
	case registry.ModeRestricted:
		d.Reason = ReasonRestricted
	case registry.ModeExpanded:
		if m, ok := matchAny(path, p.CriticalPaths); ok {
			d.Reason = ReasonCritical
			d.Matched = m
			return d
		}
		d.Allowed = true
		d.Reason = ReasonExpanded
	default:
		// custom mode has no rule engine and always denies
		d.Reason = ReasonCustom
	}
	return d
}

// matchAny returns the first entry contained in path. Empty entries never
// match.
func matchAny(path string, entries []string) (string, bool) {
	for _, e := range entries {
		if e != "" && strings.Contains(path, e) {
			return e, true
		}
	}
	return "", false
}

// Evaluator checks access against the current registry document.
type Evaluator struct {
	store  *registry.Store
	policy Policy
	logger *logging.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(e *Evaluator) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator creates an Evaluator backed by store.
func NewEvaluator(store *registry.Store, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:  store,
		policy: DefaultPolicy(),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("access")
	return e
}

// Policy returns the evaluator's policy.
func (e *Evaluator) Policy() Policy { return e.policy }

// Check loads the registry and evaluates sessionID's access to path.
// The returned error is only ever a load failure.
func (e *Evaluator) Check(ctx context.Context, sessionID, path string, op Operation) (Decision, error) {
	reg, err := e.store.Load(ctx)
	if err != nil {
		return Decision{}, err
	}
	return e.CheckIn(reg, sessionID, path, op), nil
}

// CheckIn evaluates against an already loaded registry.
func (e *Evaluator) CheckIn(reg *registry.Registry, sessionID, path string, op Operation) Decision {
	sess, _ := reg.Session(sessionID)
	d := e.policy.Evaluate(sess, path, op)

	e.logger.WithSession(sessionID).Debug("access checked",
		"file_path", path,
		"operation", string(op),
		"allowed", d.Allowed,
		"reason", d.Reason,
	)
	return d
}
