// Package filelock grants read, write and exclusive locks on file paths to
// sub-sessions.
//
// Locks are advisory records in the shared registry document. A path has at
// most one [registry.FileLock]; a read lock may be joined by further readers,
// which are listed as co-readers in join order. Write and exclusive locks
// admit nobody else.
//
// # Conflicts
//
// A refused acquisition is not an error. [Manager.Acquire] returns a
// [Result] with Conflict set, naming the blocking session, and records a
// lock-conflict history entry so the conflict detector can find it later.
//
// # Release and Promotion
//
// When the owner of a shared read lock releases it, the oldest remaining
// co-reader becomes the owner. The lock record is deleted only when no
// holder remains.
//
// # Basic Usage
//
//	mgr := filelock.NewManager(store, filelock.WithBus(bus))
//
//	res, err := mgr.Acquire(ctx, sessionID, "/src/app.go", registry.LockWrite, "refactor", nil)
//	if err != nil {
//	    return err
//	}
//	if res.Conflict {
//	    fmt.Println(res.Reason)
//	}
//
//	_, err = mgr.Release(ctx, sessionID, "/src/app.go")
package filelock
