package event

import (
	"sync"
	"testing"

	"github.com/Iron-Ham/subsession/internal/registry"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id := bus.Subscribe(TypeLockAcquired, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeLockConflict, func(e Event) {
		received = e
	})

	bus.Publish(NewLockConflictEvent("s2", "/src/app.go", "s1", registry.LockWrite))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	conflict, ok := received.(LockConflictEvent)
	if !ok {
		t.Fatalf("received %T, want LockConflictEvent", received)
	}
	if conflict.ConflictWith != "s1" || conflict.ConflictType != registry.LockWrite {
		t.Errorf("unexpected payload: %+v", conflict)
	}
	if conflict.Timestamp().IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus(nil)

	bus.Subscribe(TypeSessionEnded, func(e Event) {
		t.Error("Handler should not be called for non-matching event type")
	})

	bus.Publish(newBaseEvent(TypeSessionCreated))
}

func TestBus_PublishNilBus(t *testing.T) {
	var bus *Bus
	// managers built without a bus publish into nil
	bus.Publish(newBaseEvent(TypeSessionCreated))
}

func TestBus_SubscribeAllOrder(t *testing.T) {
	bus := NewBus(nil)

	var events []string
	bus.SubscribeAll(func(e Event) {
		events = append(events, "wildcard:"+e.EventType())
	})
	bus.Subscribe(TypeLockReleased, func(e Event) {
		events = append(events, "specific:"+e.EventType())
	})

	bus.Publish(NewLockReleasedEvent("s1", "/a", "", true))
	bus.Publish(NewSessionEndedEvent("s1", "done", []string{"/a"}, nil))

	want := []string{
		"specific:lock.released",
		"wildcard:lock.released",
		"wildcard:session.ended",
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := make(map[string]int)
	id1 := bus.Subscribe(TypeSessionCreated, func(e Event) { calls["first"]++ })
	bus.Subscribe(TypeSessionCreated, func(e Event) { calls["second"]++ })

	if !bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return true when subscription exists")
	}
	if bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return false the second time")
	}

	bus.Publish(newBaseEvent(TypeSessionCreated))

	if calls["first"] != 0 || calls["second"] != 1 {
		t.Errorf("calls = %v", calls)
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	bus.Subscribe(TypeLockAcquired, func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe(TypeLockAcquired, func(e Event) {
		calls++
	})

	bus.Publish(newBaseEvent(TypeLockAcquired))

	if calls != 2 {
		t.Errorf("Expected both handlers to be called despite panic, got %d calls", calls)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(TypeRegistryChanged, func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(newBaseEvent(TypeRegistryChanged))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("Expected 100 calls, got %d", calls)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)

	ids := make(map[string]bool)
	for range 1000 {
		id := bus.Subscribe("x", func(e Event) {})
		if ids[id] {
			t.Fatalf("Duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}
