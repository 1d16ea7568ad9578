package permission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/registry"
)

var testNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newTestBroker(t *testing.T, opts ...Option) (*Broker, *registry.Store) {
	t.Helper()
	store := registry.NewStore(filepath.Join(t.TempDir(), "locks.json"))
	err := store.Update(context.Background(), func(r *registry.Registry) error {
		r.Sessions["s1"] = &registry.Session{
			ID:                 "s1",
			MainAgent:          "main",
			SubAgent:           "docs",
			AccessMode:         registry.ModeRestricted,
			AllowedPaths:       []string{},
			PermissionRequests: []string{},
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	n := 0
	b := NewBroker(store, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
	b.newID = func() string {
		n++
		return fmt.Sprintf("req-%d", n)
	}
	return b, store
}

func TestRules_Match(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		resource string
		reqType  registry.RequestType
		want     []string
	}{
		{"/docs/guide.md", registry.RequestFileAccess, []string{RuleSafeRead, RuleSafeDocumentation}},
		{"/repo/README.md", registry.RequestFileAccess, []string{RuleSafeRead}},
		{"/IMPLEMENTATION_NOTES.md", registry.RequestFileAccess, []string{RuleSafeDocumentation}},
		{"/src/app.js", registry.RequestFileAccess, []string{}},
		{"/docs/", registry.RequestDirectoryAccess, []string{}},
		{"/docs/guide.md", registry.RequestToolPermission, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.resource+"/"+string(tt.reqType), func(t *testing.T) {
			got := rules.Match(tt.resource, tt.reqType)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_AutoApproved(t *testing.T) {
	b, store := newTestBroker(t)

	out, err := b.Request(context.Background(), "s1", "/docs/guide.md", registry.RequestFileAccess, "need to update docs")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !out.AutoApproved || out.Status != registry.StatusApproved {
		t.Fatalf("Request() = %+v, want auto-approved", out)
	}

	reg, _ := store.Load(context.Background())
	if !slices.Contains(reg.Sessions["s1"].AllowedPaths, "/docs/guide.md") {
		t.Error("approved resource not added to allowed paths")
	}
	req := reg.Requests[out.RequestID]
	if req.RespondedBy != ResponderAutoApproval || req.RespondedAt == nil {
		t.Errorf("request = %+v, want stamped by auto-approval", req)
	}
	if reg.History[0].Action != registry.ActionPermissionRequest || reg.History[0].Details != "Request: file-access" {
		t.Errorf("history[0] = %+v", reg.History[0])
	}
}

func TestRequest_StaysPending(t *testing.T) {
	b, store := newTestBroker(t)

	out, err := b.Request(context.Background(), "s1", "/src/app.js", registry.RequestFileAccess, "fix bug")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if out.AutoApproved || out.Status != registry.StatusPending {
		t.Fatalf("Request() = %+v, want pending", out)
	}

	reg, _ := store.Load(context.Background())
	if len(reg.Sessions["s1"].AllowedPaths) != 0 {
		t.Error("pending request changed allowed paths")
	}
	if !slices.Contains(reg.Sessions["s1"].PermissionRequests, out.RequestID) {
		t.Error("request id not linked to the session")
	}
}

func TestRequest_Errors(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if _, err := b.Request(ctx, "ghost", "/x", registry.RequestFileAccess, ""); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("unknown session error = %v", err)
	}
	if _, err := b.Request(ctx, "s1", "/x", registry.RequestType("network"), ""); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("bad type error = %v", err)
	}
	if _, err := b.Request(ctx, "s1", "", registry.RequestFileAccess, ""); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty resource error = %v", err)
	}
}

func TestApproveDeny(t *testing.T) {
	bus := event.NewBus(nil)
	var resolved []registry.RequestStatus
	bus.Subscribe(event.TypePermissionResolved, func(e event.Event) {
		resolved = append(resolved, e.(event.PermissionResolvedEvent).Status)
	})

	b, store := newTestBroker(t, WithBus(bus))
	ctx := context.Background()

	first, _ := b.Request(ctx, "s1", "/src/a.js", registry.RequestFileAccess, "")
	second, _ := b.Request(ctx, "s1", "/src/b.js", registry.RequestFileAccess, "")

	approved, err := b.Approve(ctx, first.RequestID, "lead", "looks fine")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != registry.StatusApproved || approved.RespondedBy != "lead" {
		t.Errorf("Approve() = %+v", approved)
	}

	denied, err := b.Deny(ctx, second.RequestID, "lead", "out of scope")
	if err != nil {
		t.Fatalf("Deny() error = %v", err)
	}
	if denied.Status != registry.StatusDenied || denied.ResponseReason != "out of scope" {
		t.Errorf("Deny() = %+v", denied)
	}

	reg, _ := store.Load(ctx)
	allowed := reg.Sessions["s1"].AllowedPaths
	if !slices.Contains(allowed, "/src/a.js") || slices.Contains(allowed, "/src/b.js") {
		t.Errorf("AllowedPaths = %v, want only /src/a.js", allowed)
	}
	if !slices.Equal(resolved, []registry.RequestStatus{registry.StatusApproved, registry.StatusDenied}) {
		t.Errorf("resolved events = %v", resolved)
	}
}

func TestRespond_OnlyFromPending(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	out, _ := b.Request(ctx, "s1", "/docs/a.md", registry.RequestFileAccess, "")
	if !out.AutoApproved {
		t.Fatal("setup: expected auto-approval")
	}

	if _, err := b.Deny(ctx, out.RequestID, "lead", ""); !errors.Is(err, ErrNotPending) {
		t.Errorf("Deny(approved) error = %v, want ErrNotPending", err)
	}
	if _, err := b.Approve(ctx, "missing", "lead", ""); !errors.Is(err, apperrors.ErrRequestNotFound) {
		t.Errorf("Approve(missing) error = %v, want ErrRequestNotFound", err)
	}
}

func TestExpireForSession(t *testing.T) {
	reg := registry.New()
	reg.Sessions["s1"] = &registry.Session{ID: "s1"}
	reg.Requests["a"] = &registry.PermissionRequest{ID: "a", SessionID: "s1", Status: registry.StatusPending}
	reg.Requests["b"] = &registry.PermissionRequest{ID: "b", SessionID: "s1", Status: registry.StatusApproved}
	reg.Requests["c"] = &registry.PermissionRequest{ID: "c", SessionID: "s2", Status: registry.StatusPending}

	expired := ExpireForSession(reg, testNow, "s1")

	if !slices.Equal(expired, []string{"a"}) {
		t.Errorf("expired = %v, want [a]", expired)
	}
	if reg.Requests["a"].Status != registry.StatusExpired || reg.Requests["a"].RespondedBy != ResponderSessionEnd {
		t.Errorf("request a = %+v", reg.Requests["a"])
	}
	if reg.Requests["b"].Status != registry.StatusApproved {
		t.Error("terminal request was changed")
	}
	if reg.Requests["c"].Status != registry.StatusPending {
		t.Error("another session's request was expired")
	}
}

func TestList(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	b.Request(ctx, "s1", "/docs/a.md", registry.RequestFileAccess, "")
	b.Request(ctx, "s1", "/src/a.js", registry.RequestFileAccess, "")
	b.Request(ctx, "s1", "/bin", registry.RequestToolPermission, "")

	pending, err := b.List(ctx, registry.StatusPending)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("len(pending) = %d, want 2", len(pending))
	}
	all, _ := b.List(ctx, "")
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}
