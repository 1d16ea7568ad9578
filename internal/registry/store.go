package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/logging"
)

// Store reads and writes the registry document at a fixed path.
//
// Every mutation goes through Update, which serializes with other processes
// through a cooperative lock file next to the document, reloads the
// document, applies the mutation and atomically replaces the file. A
// process that ignores the lock file can still lose an update; the lock is
// advisory like the file locks it protects.
type Store struct {
	mu sync.Mutex // serializes Update calls within this process

	path           string
	historyLimit   int
	lockTimeout    time.Duration
	staleLockAfter time.Duration
	validate       bool
	logger         *logging.Logger
	now            func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded loads and lock cleanup.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistoryLimit sets the lockHistory cap.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.historyLimit = n }
}

// WithLockTimeout sets how long Update waits for the cooperative lock and
// the age after which a held lock is treated as abandoned.
func WithLockTimeout(timeout, staleAfter time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = timeout
		s.staleLockAfter = staleAfter
	}
}

// WithSchemaValidation toggles JSON schema validation on load.
func WithSchemaValidation(enabled bool) Option {
	return func(s *Store) { s.validate = enabled }
}

// WithClock overrides the clock used to stamp lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store for the document at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:           path,
		historyLimit:   DefaultHistoryLimit,
		lockTimeout:    2 * time.Second,
		staleLockAfter: 30 * time.Second,
		validate:       true,
		logger:         logging.NopLogger(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("registry")
	return s
}

// Path returns the document path.
func (s *Store) Path() string { return s.path }

// LockPath returns the cooperative lock file path.
func (s *Store) LockPath() string { return s.path + ".lock" }

// Exists reports whether the document has been written.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the current document. A missing, unreadable or invalid file
// yields an empty document; invalid files are moved aside first so the
// next save does not destroy them.
func (s *Store) Load(ctx context.Context) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(), nil
}

func (s *Store) load() *Registry {
	reg := New()
	reg.historyLimit = s.historyLimit

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("registry unreadable, using empty registry", "path", s.path, "error", err)
		}
		return reg
	}

	if s.validate {
		if verr := ValidateDocument(data); verr != nil {
			s.quarantine(verr)
			return reg
		}
	}

	var loaded Registry
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.quarantine(err)
		return reg
	}
	loaded.normalize()
	loaded.historyLimit = s.historyLimit
	if len(loaded.History) > s.historyLimit {
		loaded.History = loaded.History[:s.historyLimit]
	}

	s.logger.Debug("registry loaded",
		"sessions", len(loaded.Sessions),
		"locks", len(loaded.FileLocks),
		"requests", len(loaded.Requests),
	)
	return &loaded
}

func (s *Store) quarantine(cause error) {
	cause = apperrors.NewCorruptDocumentError(s.path, cause)
	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, backup); err != nil {
		s.logger.Warn("registry invalid, using empty registry",
			"path", s.path,
			"error", cause,
			"backup_error", err,
		)
		return
	}
	s.logger.Warn("registry invalid, moved aside and using empty registry",
		"path", s.path,
		"backup", backup,
		"error", cause,
	)
}

// Save stamps lastUpdated and atomically replaces the document.
func (s *Store) Save(ctx context.Context, reg *Registry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	reg.LastUpdated = s.now().UTC()
	reg.normalize()

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceError("encode registry", err).WithPath(s.path)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return apperrors.NewPersistenceError("create registry directory", err).WithPath(s.path)
	}
	if err := WriteFileAtomic(s.path, data, 0644); err != nil {
		return apperrors.NewPersistenceError("write registry", err).WithPath(s.path)
	}
	return nil
}

// Update runs one load-mutate-save cycle under the cooperative lock. If fn
// returns an error the document is not saved and the error is returned.
func (s *Store) Update(ctx context.Context, fn func(*Registry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return apperrors.NewPersistenceError("create registry directory", err).WithPath(s.path)
	}

	return WithLockFile(ctx, s.LockPath(), s.lockTimeout, s.staleLockAfter, s.logger, func() error {
		reg := s.load()
		if err := fn(reg); err != nil {
			return err
		}
		return s.Save(ctx, reg)
	})
}

// View loads the document and passes it to fn without saving.
func (s *Store) View(ctx context.Context, fn func(*Registry) error) error {
	reg, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return fn(reg)
}

// Init writes an empty document if none exists. It reports whether a new
// document was created.
func (s *Store) Init(ctx context.Context) (bool, error) {
	created := false
	err := s.Update(ctx, func(*Registry) error {
		created = !s.Exists()
		return nil
	})
	return created, err
}

// Status loads the document and returns its snapshot with revision set.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	reg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	st := reg.Status()
	if rev, err := Digest(reg); err == nil {
		st.Revision = rev
	}
	return st, nil
}

// WriteFileAtomic writes data to a temp file in the same directory and
// renames it over path so readers never observe a partial document.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
