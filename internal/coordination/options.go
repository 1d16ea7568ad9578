package coordination

import (
	"time"

	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLog sets the coordination log every step is recorded in.
// Without one, nothing is recorded.
func WithLog(l *Log) Option {
	return func(m *Manager) { m.log = l }
}

// WithDetector sets the detector used by Status. If nil, a detector with
// the default configuration is created on demand.
func WithDetector(d *conflict.Detector) Option {
	return func(m *Manager) { m.detector = d }
}

// WithBus sets the bus that receives coordination events.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the clock used for timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}
