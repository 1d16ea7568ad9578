// Package watch observes the registry document on disk and announces
// content changes made by any process.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// DefaultDebounce collapses the burst of events an atomic save produces.
const DefaultDebounce = 50 * time.Millisecond

// Watcher publishes a RegistryChangedEvent whenever the registry document's
// digest changes. Saves that only move lastUpdated are ignored.
type Watcher struct {
	store    *registry.Store
	bus      *event.Bus
	logger   *logging.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	revision string
	onChange func(event.RegistryChangedEvent)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithBus sets the bus change events are published on.
func WithBus(bus *event.Bus) Option {
	return func(w *Watcher) { w.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period before a burst is processed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a Watcher on the directory holding the store's document. The
// directory is created if needed.
func New(store *registry.Store, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		store:    store,
		logger:   logging.NopLogger(),
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watch")

	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// SetCallback sets a function called with every change, after the event is
// published.
func (w *Watcher) SetCallback(cb func(event.RegistryChangedEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = cb
}

// Revision returns the digest of the last document seen.
func (w *Watcher) Revision() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.revision
}

// Start records the current revision and begins watching. The loop ends
// when ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	if _, err := w.check(ctx, false); err != nil {
		w.logger.Warn("initial registry read failed", "path", w.store.Path(), "error", err)
	}
	go w.loop(ctx)
}

// Stop ends the loop and releases the fsnotify watcher. Use Done to wait
// for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fsw.Close()
	})
}

// Done is closed when the loop started by Start has exited.
func (w *Watcher) Done() <-chan struct{} { return w.doneCh }

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer w.Stop()

	name := filepath.Base(w.store.Path())
	timer := time.NewTimer(0)
	<-timer.C
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = true
			timer.Reset(w.debounce)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if _, err := w.check(ctx, true); err != nil {
				w.logger.Warn("registry reload failed", "path", w.store.Path(), "error", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// check reloads the document and, when its digest moved and announce is
// set, publishes the change. It reports whether the revision changed.
func (w *Watcher) check(ctx context.Context, announce bool) (bool, error) {
	reg, err := w.store.Load(ctx)
	if err != nil {
		return false, err
	}
	rev, err := registry.Digest(reg)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if rev == w.revision {
		w.mu.Unlock()
		return false, nil
	}
	w.revision = rev
	cb := w.onChange
	w.mu.Unlock()

	if !announce {
		return true, nil
	}

	st := reg.Status()
	st.Revision = rev
	ev := event.NewRegistryChangedEvent(w.store.Path(), rev, st)
	w.logger.Debug("registry changed",
		"revision", rev,
		"sessions", st.TotalActiveSessions,
		"locks", st.TotalActiveLocks,
	)
	w.bus.Publish(ev)
	if cb != nil {
		cb(ev)
	}
	return true, nil
}
