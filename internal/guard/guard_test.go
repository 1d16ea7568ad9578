package guard

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/filelock"
	"github.com/Iron-Ham/subsession/internal/registry"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestGuard(t *testing.T) (*Guard, *filelock.Manager, *registry.Store) {
	t.Helper()
	store := registry.NewStore(filepath.Join(t.TempDir(), "locks.json"))
	err := store.Update(context.Background(), func(r *registry.Registry) error {
		r.Sessions["docs"] = &registry.Session{
			ID:           "docs",
			MainAgent:    "main",
			SubAgent:     "writer",
			StartTime:    testNow,
			AccessMode:   registry.ModeRestricted,
			AllowedPaths: []string{"/work/docs"},
			DeniedPaths:  []string{"/work/docs/private"},
		}
		r.Sessions["other"] = &registry.Session{
			ID:         "other",
			MainAgent:  "main",
			SubAgent:   "coder",
			StartTime:  testNow,
			AccessMode: registry.ModeExpanded,
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed sessions: %v", err)
	}

	locks := filelock.NewManager(store, filelock.WithClock(func() time.Time { return testNow }))
	g := New(access.NewEvaluator(store), locks, WithWorkDir("/work"))
	return g, locks, store
}

func TestValidate_MainAgent(t *testing.T) {
	g, _, _ := newTestGuard(t)
	res, err := g.Validate(context.Background(), "", access.OpDelete, Params{FilePath: "/etc/passwd"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Allowed || res.Reason != ReasonMainAgent {
		t.Errorf("result = %+v", res)
	}
}

func TestValidate_WriteAcquiresLock(t *testing.T) {
	g, locks, _ := newTestGuard(t)
	ctx := context.Background()

	res, err := g.Validate(ctx, "docs", access.OpEdit, Params{FilePath: "docs/guide.md"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Allowed || !res.AutoLockAcquired || res.Reason != ReasonValidated {
		t.Fatalf("result = %+v", res)
	}
	if len(res.ValidatedPaths) != 1 || res.ValidatedPaths[0].Path != "/work/docs/guide.md" {
		t.Errorf("validated paths = %+v", res.ValidatedPaths)
	}

	lock, ok, err := locks.Lock(ctx, "/work/docs/guide.md")
	if err != nil || !ok {
		t.Fatalf("Lock() = %v, %v, %v", lock, ok, err)
	}
	if lock.LockedBy != "docs" || lock.LockType != registry.LockWrite || lock.Reason != "edit operation" {
		t.Errorf("lock = %+v", lock)
	}
}

func TestValidate_ReadDoesNotLock(t *testing.T) {
	g, locks, _ := newTestGuard(t)
	ctx := context.Background()

	res, err := g.Validate(ctx, "docs", access.OpRead, Params{FilePath: "/work/docs/a.md"})
	if err != nil || !res.Allowed || res.AutoLockAcquired {
		t.Fatalf("Validate() = %+v, %v", res, err)
	}
	if _, ok, _ := locks.Lock(ctx, "/work/docs/a.md"); ok {
		t.Error("read took a lock")
	}

	res, err = g.Validate(ctx, "docs", access.OpDelete, Params{FilePath: "/work/docs/a.md"})
	if err != nil || !res.Allowed || res.AutoLockAcquired {
		t.Fatalf("Validate(delete) = %+v, %v", res, err)
	}
}

func TestValidate_Denied(t *testing.T) {
	g, _, _ := newTestGuard(t)

	tests := []struct {
		name   string
		op     access.Operation
		params Params
		path   string
	}{
		{"outside allowed", access.OpWrite, Params{FilePath: "/work/src/main.go"}, "/work/src/main.go"},
		{"denied beats allowed", access.OpRead, Params{FilePath: "docs/private/keys.txt"}, "/work/docs/private/keys.txt"},
		{"bash target", access.OpBash, Params{Command: "cat /work/docs/ok.md > /work/src/out.txt"}, "/work/src/out.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Validate(context.Background(), "docs", tt.op, tt.params)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.Allowed {
				t.Fatalf("Validate() allowed %s", tt.path)
			}
			if res.FilePath != tt.path || !strings.HasPrefix(res.Reason, "Access denied to "+tt.path+": ") {
				t.Errorf("result = %+v", res)
			}
			sa := res.SuggestedAction
			if sa == nil || !sa.AutoRequestAvailable || !strings.Contains(sa.Command, "subsession permission request docs "+tt.path) {
				t.Errorf("suggested action = %+v", sa)
			}
			if sa != nil && sa.Description != "Request permission to "+string(tt.op)+" "+tt.path {
				t.Errorf("description = %q", sa.Description)
			}
		})
	}
}

func TestValidate_CleansDotSegments(t *testing.T) {
	g, _, _ := newTestGuard(t)

	tests := []struct {
		name    string
		path    string
		want    string
		allowed bool
	}{
		// the raw string contains the allowed entry, the cleaned path does not
		{"parent escapes allowed dir", "/work/docs/../src/main.go", "/work/src/main.go", false},
		{"relative escape", "docs/../../etc/x", "/etc/x", false},
		{"current dir segment", "/work/docs/./guide.md", "/work/docs/guide.md", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Validate(context.Background(), "docs", access.OpRead, Params{FilePath: tt.path})
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v: %+v", res.Allowed, tt.allowed, res)
			}
			got := res.FilePath
			if tt.allowed {
				got = res.ValidatedPaths[0].Path
			}
			if got != tt.want {
				t.Errorf("checked path = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate_LockConflict(t *testing.T) {
	g, locks, _ := newTestGuard(t)
	ctx := context.Background()

	if _, err := locks.Acquire(ctx, "other", "/work/docs/shared.md", registry.LockWrite, "busy", nil); err != nil {
		t.Fatal(err)
	}

	res, err := g.Validate(ctx, "docs", access.OpWrite, Params{FilePath: "/work/docs/shared.md"})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Allowed || res.ConflictWith != "other" {
		t.Fatalf("result = %+v", res)
	}
	if res.Reason != filelock.ConflictReason("/work/docs/shared.md", "other") {
		t.Errorf("Reason = %q", res.Reason)
	}
	if res.SuggestedAction == nil || !strings.Contains(res.SuggestedAction.Description, "coordinate with session other") {
		t.Errorf("suggested action = %+v", res.SuggestedAction)
	}
}

func TestBashPaths(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"ls -la", nil},
		{"cat README.md", []string{"README.md"}},
		{"rm -rf build", nil},
		{"mv a.txt b.txt", []string{"a.txt", "b.txt"}},
		{"chmod 755 run.sh", []string{"run.sh"}},
		{"mkdir out", []string{"out"}},
		{"echo hi > /dev/null", nil},
		{"go test ./... > report.txt", []string{"report.txt"}},
		{"vim main.go && cat main.go", []string{"main.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got := BashPaths(tt.command)
			if !slices.Equal(got, tt.want) {
				t.Errorf("BashPaths(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestExtractPaths(t *testing.T) {
	tests := []struct {
		name   string
		op     access.Operation
		params Params
		want   []string
	}{
		{"read", access.OpRead, Params{FilePath: "a.go"}, []string{"a.go"}},
		{"glob", access.OpGlob, Params{Path: "src", FilePath: "ignored"}, []string{"src"}},
		{"write without path", access.OpWrite, Params{}, nil},
		{"bash", access.OpBash, Params{Command: "tail log.txt"}, []string{"log.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPaths(tt.op, tt.params); !slices.Equal(got, tt.want) {
				t.Errorf("ExtractPaths() = %v, want %v", got, tt.want)
			}
		})
	}
}
