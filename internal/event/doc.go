// Package event provides an in-process pub-sub bus for registry changes.
//
// Every operation that mutates the registry document publishes one typed
// event after the mutation has been saved. The bus never feeds back into
// the registry; it exists so the CLI can audit-log operations, the watcher
// can report external changes and the dashboard can refresh without the
// managers knowing about any of them.
//
// # Event Categories
//
// Session lifecycle:
//   - [SessionCreatedEvent], [SessionEndedEvent]
//
// File locks:
//   - [LockAcquiredEvent], [LockReleasedEvent], [LockConflictEvent]
//
// Permissions:
//   - [PermissionRequestedEvent], [PermissionResolvedEvent]
//
// Coordination:
//   - [CoordinationStartedEvent], [CoordinationMessageEvent], [CoordinationResolvedEvent]
//
// Registry:
//   - [RegistryChangedEvent]: the document on disk changed (from any process)
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine; a panicking handler is logged and does not stop
// delivery to the remaining handlers.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeLockConflict, func(e event.Event) {
//	    c := e.(event.LockConflictEvent)
//	    fmt.Printf("%s blocked by %s\n", c.FilePath, c.ConflictWith)
//	})
//	bus.Publish(event.NewLockConflictEvent("s2", "/src/app.go", "s1", registry.LockWrite))
package event
