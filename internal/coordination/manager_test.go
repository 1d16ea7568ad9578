package coordination

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/registry"
)

var testNow = time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store *registry.Store
	log   *Log
	bus   *event.Bus
	mgr   *Manager
}

func newTestEnv(t *testing.T, sessions ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return testNow }

	env := &testEnv{
		store: registry.NewStore(filepath.Join(dir, ".sub-session-locks.json")),
		log:   NewLog(filepath.Join(dir, "coordination-log.json"), WithLogClock(clock)),
		bus:   event.NewBus(nil),
	}
	n := 0
	env.mgr = NewManager(env.store,
		WithLog(env.log),
		WithBus(env.bus),
		WithClock(clock),
	)
	env.mgr.newMsgID = func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}

	if err := env.store.Update(context.Background(), func(r *registry.Registry) error {
		for _, id := range sessions {
			r.Sessions[id] = &registry.Session{
				ID:         id,
				MainAgent:  "main",
				SubAgent:   "sub",
				StartTime:  testNow,
				AccessMode: registry.ModeRestricted,
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	return env
}

func TestCoordinate(t *testing.T) {
	env := newTestEnv(t, "s1", "s2")
	ctx := context.Background()

	var started []event.CoordinationStartedEvent
	env.bus.Subscribe(event.TypeCoordinationStarted, func(e event.Event) {
		started = append(started, e.(event.CoordinationStartedEvent))
	})

	c, err := env.mgr.Coordinate(ctx, []string{"s1", "s2", "s1"}, "file-lock-conflict", map[string]any{"file": "/a.go"})
	if err != nil {
		t.Fatalf("Coordinate() error = %v", err)
	}
	if !strings.HasPrefix(c.ID, fmt.Sprintf("coord-%d-", testNow.UnixMilli())) {
		t.Errorf("ID = %q", c.ID)
	}
	if len(c.Sessions) != 2 || c.Status != registry.CoordinationActive {
		t.Errorf("coordination = %+v", c)
	}

	reg, _ := env.store.Load(ctx)
	for _, id := range []string{"s1", "s2"} {
		if got := reg.Sessions[id].Coordinations; len(got) != 1 || got[0] != c.ID {
			t.Errorf("session %s coordinations = %v", id, got)
		}
	}
	if reg.Coordinations[c.ID].Context["file"] != "/a.go" {
		t.Errorf("context not persisted: %v", reg.Coordinations[c.ID].Context)
	}

	entries, _ := env.log.Entries(ctx, 0)
	if len(entries) != 1 || entries[0].Action != ActionStarted || entries[0].Details != "Started file-lock-conflict coordination" {
		t.Errorf("log entries = %+v", entries)
	}
	if len(started) != 1 || started[0].CoordinationID != c.ID {
		t.Errorf("started events = %+v", started)
	}
}

func TestCoordinate_Errors(t *testing.T) {
	env := newTestEnv(t, "s1")
	ctx := context.Background()

	_, err := env.mgr.Coordinate(ctx, []string{"s1", "ghost"}, "", nil)
	if !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("unknown session error = %v, want ErrSessionNotFound", err)
	}
	if err != nil && !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error %q does not name the session", err)
	}

	if _, err := env.mgr.Coordinate(ctx, nil, "", nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty sessions error = %v, want ErrInvalidInput", err)
	}

	reg, _ := env.store.Load(ctx)
	if len(reg.Coordinations) != 0 {
		t.Error("failed Coordinate() persisted a coordination")
	}
}

func TestCoordinate_DefaultType(t *testing.T) {
	env := newTestEnv(t, "s1")
	c, err := env.mgr.Coordinate(context.Background(), []string{"s1"}, "", nil)
	if err != nil {
		t.Fatalf("Coordinate() error = %v", err)
	}
	if c.Type != DefaultType {
		t.Errorf("Type = %q, want %q", c.Type, DefaultType)
	}
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t, "s1", "s2", "outsider")
	ctx := context.Background()
	c, err := env.mgr.Coordinate(ctx, []string{"s1", "s2"}, "branch-conflict", nil)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := env.mgr.SendMessage(ctx, c.ID, "s1", "I take the API", "")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.ID != "msg-1" || msg.Type != registry.MessageInfo || msg.FromSession != "s1" {
		t.Errorf("message = %+v", msg)
	}
	if _, err := env.mgr.SendMessage(ctx, c.ID, "s2", "agreed", registry.MessageAgreement); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	got, _ := env.mgr.Get(ctx, c.ID)
	if len(got.Messages) != 2 || got.Messages[1].Type != registry.MessageAgreement {
		t.Errorf("messages = %+v", got.Messages)
	}

	tests := []struct {
		name    string
		coord   string
		from    string
		msgType registry.MessageType
		wantErr error
	}{
		{"unknown coordination", "coord-0-none", "s1", "", apperrors.ErrCoordinationNotFound},
		{"not a participant", c.ID, "outsider", "", ErrNotParticipant},
		{"bad type", c.ID, "s1", "shout", apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.mgr.SendMessage(ctx, tt.coord, tt.from, "hi", tt.msgType)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SendMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	entries, _ := env.log.Entries(ctx, 0)
	if len(entries) != 3 || entries[0].Action != ActionMessage || entries[0].Details != "agreed" {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestResolve_Terminal(t *testing.T) {
	env := newTestEnv(t, "s1", "s2")
	ctx := context.Background()
	c, err := env.mgr.Coordinate(ctx, []string{"s1", "s2"}, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := env.mgr.Resolve(ctx, c.ID, "sequential", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != registry.CoordinationResolved || resolved.Resolution == nil {
		t.Fatalf("coordination = %+v", resolved)
	}
	if resolved.Resolution.ResolvedBy != DefaultResolver || resolved.Resolution.Approach != "sequential" {
		t.Errorf("resolution = %+v", resolved.Resolution)
	}

	_, err = env.mgr.Resolve(ctx, c.ID, "partition", "main")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second Resolve() error = %v, want ErrAlreadyResolved", err)
	}

	got, _ := env.mgr.Get(ctx, c.ID)
	if got.Status != registry.CoordinationResolved || got.Resolution.Approach != "sequential" {
		t.Errorf("resolved coordination changed: %+v", got)
	}

	if _, err := env.mgr.Resolve(ctx, "coord-0-none", "wait", ""); !errors.Is(err, apperrors.ErrCoordinationNotFound) {
		t.Errorf("unknown coordination error = %v", err)
	}
	if _, err := env.mgr.Resolve(ctx, c.ID, "", ""); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty approach error = %v", err)
	}

	entries, _ := env.log.Entries(ctx, 1)
	if entries[0].Action != ActionResolved || entries[0].Resolution != "sequential" {
		t.Errorf("newest log entry = %+v", entries[0])
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, "s1", "s2", "s3")
	ctx := context.Background()

	a, err := env.mgr.Coordinate(ctx, []string{"s1", "s2"}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.mgr.Coordinate(ctx, []string{"s3"}, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.mgr.Resolve(ctx, a.ID, "wait", ""); err != nil {
		t.Fatal(err)
	}

	st, err := env.mgr.Status(ctx, false)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Overview.ActiveSessions != 3 || st.Overview.ActiveCoordinations != 1 {
		t.Errorf("overview = %+v", st.Overview)
	}
	if len(st.Coordinations) != 2 {
		t.Errorf("len(Coordinations) = %d, want 2", len(st.Coordinations))
	}
	if st.RecentActivity != nil {
		t.Error("history included without includeHistory")
	}
	if st.Overview.SystemHealth.Level == "" {
		t.Error("health not assessed")
	}

	st, err = env.mgr.Status(ctx, true)
	if err != nil {
		t.Fatalf("Status(true) error = %v", err)
	}
	if len(st.RecentActivity) != 3 {
		t.Errorf("len(RecentActivity) = %d, want 3", len(st.RecentActivity))
	}
}
