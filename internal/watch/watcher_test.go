package watch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/registry"
)

func startWatcher(t *testing.T) (*Watcher, *registry.Store, chan event.RegistryChangedEvent) {
	t.Helper()
	store := registry.NewStore(filepath.Join(t.TempDir(), "state", "locks.json"))
	bus := event.NewBus(nil)
	changes := make(chan event.RegistryChangedEvent, 16)
	bus.Subscribe(event.TypeRegistryChanged, func(e event.Event) {
		changes <- e.(event.RegistryChangedEvent)
	})

	w, err := New(store, WithBus(bus), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return w, store, changes
}

func addSession(t *testing.T, store *registry.Store, id string) {
	t.Helper()
	err := store.Update(context.Background(), func(r *registry.Registry) error {
		r.Sessions[id] = &registry.Session{ID: id, MainAgent: "main", SubAgent: "sub", AccessMode: registry.ModeRestricted}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestWatcher_PublishesContentChange(t *testing.T) {
	w, store, changes := startWatcher(t)
	before := w.Revision()

	addSession(t, store, "s1")

	select {
	case ev := <-changes:
		if ev.Revision == before || ev.Revision == "" {
			t.Errorf("Revision = %q, before %q", ev.Revision, before)
		}
		if ev.Status == nil || ev.Status.TotalActiveSessions != 1 {
			t.Errorf("Status = %+v", ev.Status)
		}
		if ev.Path != store.Path() {
			t.Errorf("Path = %q", ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change event")
	}
}

func TestWatcher_IgnoresTimestampOnlySave(t *testing.T) {
	_, store, changes := startWatcher(t)

	addSession(t, store, "s1")
	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("no change event")
	}

	if err := store.Update(context.Background(), func(*registry.Registry) error { return nil }); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-changes:
		t.Errorf("unexpected event for unchanged content: %s", ev.Revision)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_Callback(t *testing.T) {
	w, store, _ := startWatcher(t)
	got := make(chan string, 1)
	w.SetCallback(func(e event.RegistryChangedEvent) {
		select {
		case got <- e.Revision:
		default:
		}
	})

	addSession(t, store, "s2")
	select {
	case rev := <-got:
		if rev != w.Revision() {
			t.Errorf("callback revision %q, watcher revision %q", rev, w.Revision())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("callback not called")
	}
}

func TestWatcher_StopEndsLoop(t *testing.T) {
	w, _, _ := startWatcher(t)
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	w.Stop()
}
