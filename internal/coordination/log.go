package coordination

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// DefaultLogLimit caps the coordination log.
const DefaultLogLimit = 200

// logVersion is written into new log documents.
const logVersion = "1.0.0"

// Log actions.
const (
	ActionStarted  = "coordination-started"
	ActionMessage  = "coordination-message"
	ActionResolved = "coordination-resolved"
	ActionReport   = "coordination-report"
)

// Entry is one coordination log record.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Details    string    `json:"details"`
	SessionIDs []string  `json:"sessionIds"`
	Resolution any       `json:"resolution"`
}

// LogDocument is the on-disk coordination log, newest entry first.
type LogDocument struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
	Entries     []Entry   `json:"entries"`
}

// Log is the bounded coordination log kept beside the registry. It uses the
// same cooperative lock file discipline as the registry store.
type Log struct {
	mu sync.Mutex

	path           string
	limit          int
	lockTimeout    time.Duration
	staleLockAfter time.Duration
	logger         *logging.Logger
	now            func() time.Time
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithLogLimit sets the entry cap.
func WithLogLimit(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithLogLockTimeout sets the cooperative lock wait and stale age.
func WithLogLockTimeout(timeout, staleAfter time.Duration) LogOption {
	return func(l *Log) {
		l.lockTimeout = timeout
		l.staleLockAfter = staleAfter
	}
}

// WithLogLogger sets the logger.
func WithLogLogger(logger *logging.Logger) LogOption {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLogClock overrides the clock used for timestamps and ids.
func WithLogClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// NewLog returns a Log for the document at path.
func NewLog(path string, opts ...LogOption) *Log {
	l := &Log{
		path:           path,
		limit:          DefaultLogLimit,
		lockTimeout:    2 * time.Second,
		staleLockAfter: 30 * time.Second,
		logger:         logging.NopLogger(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("coordination-log")
	return l
}

// Path returns the document path.
func (l *Log) Path() string { return l.path }

// Record prepends an entry and truncates the log to its limit. It satisfies
// conflict.Journal.
func (l *Log) Record(ctx context.Context, action, details string, sessionIDs []string, resolution any) error {
	if sessionIDs == nil {
		sessionIDs = []string{}
	}
	return l.update(ctx, func(doc *LogDocument, now time.Time) {
		entry := Entry{
			ID:         NewID(now),
			Timestamp:  now,
			Action:     action,
			Details:    details,
			SessionIDs: sessionIDs,
			Resolution: resolution,
		}
		doc.Entries = append([]Entry{entry}, doc.Entries...)
		if len(doc.Entries) > l.limit {
			doc.Entries = doc.Entries[:l.limit]
		}
	})
}

// Init writes an empty log if none exists and reports whether it did.
func (l *Log) Init(ctx context.Context) (bool, error) {
	created := false
	err := l.update(ctx, func(*LogDocument, time.Time) {
		_, statErr := os.Stat(l.path)
		created = os.IsNotExist(statErr)
	})
	return created, err
}

// Entries returns up to n of the newest entries; n <= 0 returns all.
func (l *Log) Entries(ctx context.Context, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := l.load().Entries
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (l *Log) update(ctx context.Context, fn func(*LogDocument, time.Time)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return apperrors.NewPersistenceError("create coordination log directory", err).WithPath(l.path)
	}
	return registry.WithLockFile(ctx, l.path+".lock", l.lockTimeout, l.staleLockAfter, l.logger, func() error {
		doc := l.load()
		now := l.now().UTC()
		fn(doc, now)
		doc.LastUpdated = now

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return apperrors.NewPersistenceError("encode coordination log", err).WithPath(l.path)
		}
		if err := registry.WriteFileAtomic(l.path, data, 0644); err != nil {
			return apperrors.NewPersistenceError("write coordination log", err).WithPath(l.path)
		}
		return nil
	})
}

// load reads the document. Like the registry, an unreadable or invalid log
// degrades to an empty one; an invalid file is moved aside first.
func (l *Log) load() *LogDocument {
	empty := &LogDocument{Version: logVersion, Entries: []Entry{}}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("coordination log unreadable, using empty log", "path", l.path, "error", err)
		}
		return empty
	}

	var doc LogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", l.path, l.now().Unix())
		if rerr := os.Rename(l.path, backup); rerr != nil {
			backup = ""
		}
		l.logger.Warn("coordination log invalid, using empty log",
			"path", l.path,
			"backup", backup,
			"error", apperrors.NewCorruptDocumentError(l.path, err),
		)
		return empty
	}
	if doc.Version == "" {
		doc.Version = logVersion
	}
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	if len(doc.Entries) > l.limit {
		doc.Entries = doc.Entries[:l.limit]
	}
	return &doc
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns "coord-<unixMillis>-<6 base36 chars>". It names both
// coordinations and log entries.
func NewID(now time.Time) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("coordination: read random bytes: %v", err))
	}
	for i := range b {
		b[i] = base36[int(b[i])%len(base36)]
	}
	return fmt.Sprintf("coord-%d-%s", now.UnixMilli(), b)
}
