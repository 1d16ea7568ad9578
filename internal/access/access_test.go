package access

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/subsession/internal/registry"
)

func TestPolicy_Evaluate(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name    string
		sess    *registry.Session
		path    string
		allowed bool
		reason  string
	}{
		{
			name:   "unknown session",
			sess:   nil,
			path:   "/src/a.js",
			reason: ReasonSessionNotFound,
		},
		{
			name:   "restricted with empty lists",
			sess:   &registry.Session{AccessMode: registry.ModeRestricted},
			path:   "/any/file.js",
			reason: ReasonRestricted,
		},
		{
			name:    "allowed path in restricted mode",
			sess:    &registry.Session{AccessMode: registry.ModeRestricted, AllowedPaths: []string{"/src/"}},
			path:    "/repo/src/a.js",
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name:   "deny beats allow",
			sess:   &registry.Session{AccessMode: registry.ModeExpanded, AllowedPaths: []string{"/src/"}, DeniedPaths: []string{"/src/secret"}},
			path:   "/src/secret/key.pem",
			reason: ReasonDenied,
		},
		{
			name:    "expanded default",
			sess:    &registry.Session{AccessMode: registry.ModeExpanded},
			path:    "/src/a.js",
			allowed: true,
			reason:  ReasonExpanded,
		},
		{
			name:   "expanded critical path",
			sess:   &registry.Session{AccessMode: registry.ModeExpanded},
			path:   "/repo/.git/config",
			reason: ReasonCritical,
		},
		{
			name:    "allow list overrides critical path",
			sess:    &registry.Session{AccessMode: registry.ModeExpanded, AllowedPaths: []string{"/.env"}},
			path:    "/repo/.env.local",
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name:   "custom mode always denies",
			sess:   &registry.Session{AccessMode: registry.ModeCustom},
			path:   "/docs/readme.md",
			reason: ReasonCustom,
		},
		{
			name:    "custom mode honours allow list",
			sess:    &registry.Session{AccessMode: registry.ModeCustom, AllowedPaths: []string{"/docs/"}},
			path:    "/docs/readme.md",
			allowed: true,
			reason:  ReasonAllowed,
		},
		{
			name:   "empty list entry never matches",
			sess:   &registry.Session{AccessMode: registry.ModeRestricted, AllowedPaths: []string{""}},
			path:   "/x",
			reason: ReasonRestricted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Evaluate(tt.sess, tt.path, OpRead)
			if d.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestPolicy_DeniedPathAlwaysDenies(t *testing.T) {
	policy := DefaultPolicy()
	modes := []registry.AccessMode{registry.ModeRestricted, registry.ModeExpanded, registry.ModeCustom}
	ops := []Operation{OpRead, OpWrite, OpCreate, OpEdit, OpDelete, OpGlob, OpBash}

	for _, mode := range modes {
		for _, op := range ops {
			sess := &registry.Session{
				AccessMode:   mode,
				AllowedPaths: []string{"/"},
				DeniedPaths:  []string{"/config/"},
			}
			if d := policy.Evaluate(sess, "/config/secrets.yml", op); d.Allowed {
				t.Errorf("mode=%s op=%s allowed a denied path", mode, op)
			}
		}
	}
}

// Substring matching admits traversal through an allowed prefix. This
// pins the current behavior so a change to segment-aware matching is a
// deliberate decision.
func TestPolicy_SubstringLooseness(t *testing.T) {
	sess := &registry.Session{AccessMode: registry.ModeRestricted, AllowedPaths: []string{"/src/"}}

	d := DefaultPolicy().Evaluate(sess, "/src/../../etc/passwd", OpRead)
	if !d.Allowed {
		t.Error("substring match no longer admits traversal; update the package doc if this is intended")
	}
}

func TestOperation_Mutating(t *testing.T) {
	for _, op := range []Operation{OpWrite, OpCreate, OpEdit, OpDelete} {
		if !op.Mutating() {
			t.Errorf("%s.Mutating() = false", op)
		}
	}
	for _, op := range []Operation{OpRead, OpGlob, OpBash} {
		if op.Mutating() {
			t.Errorf("%s.Mutating() = true", op)
		}
	}
}

func TestEvaluator_Check(t *testing.T) {
	store := registry.NewStore(filepath.Join(t.TempDir(), "locks.json"))
	ctx := context.Background()

	err := store.Update(ctx, func(r *registry.Registry) error {
		r.Sessions["s1"] = &registry.Session{
			ID:          "s1",
			MainAgent:   "main",
			SubAgent:    "docs",
			AccessMode:  registry.ModeExpanded,
			DeniedPaths: []string{"/src/core/"},
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	e := NewEvaluator(store, WithPolicy(Policy{CriticalPaths: []string{"/vendor/"}}))

	d, err := e.Check(ctx, "s1", "/vendor/lib.go", OpWrite)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Allowed || d.Reason != ReasonCritical || d.Matched != "/vendor/" {
		t.Errorf("Check(vendor) = %+v, want critical denial", d)
	}

	d, _ = e.Check(ctx, "s1", "/.git/HEAD", OpRead)
	if !d.Allowed {
		t.Errorf("custom policy should replace default critical paths, got %+v", d)
	}

	d, _ = e.Check(ctx, "nobody", "/x", OpRead)
	if d.Allowed || d.Reason != ReasonSessionNotFound {
		t.Errorf("Check(unknown) = %+v", d)
	}
}

func TestParseOperation(t *testing.T) {
	for _, s := range []string{"read", "write", "create", "edit", "delete", "glob", "bash"} {
		if op, err := ParseOperation(s); err != nil || string(op) != s {
			t.Errorf("ParseOperation(%q) = %q, %v", s, op, err)
		}
	}
	if _, err := ParseOperation("exec"); err == nil {
		t.Error("ParseOperation(exec) should fail")
	}
}
