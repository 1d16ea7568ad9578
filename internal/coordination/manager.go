package coordination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/subsession/internal/conflict"
	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

var (
	// ErrNotParticipant is returned when a non-participant sends a message.
	ErrNotParticipant = errors.New("session is not part of the coordination")
	// ErrAlreadyResolved is returned when resolving a resolved coordination.
	ErrAlreadyResolved = errors.New("coordination is already resolved")
)

// DefaultType is used when a coordination is started without a type.
const DefaultType = "general"

// DefaultResolver is recorded when Resolve is called without a resolver.
const DefaultResolver = "system"

// recentActivityLimit is how many log entries Status includes.
const recentActivityLimit = 20

// Overview is the headline block of Status.
type Overview struct {
	ActiveSessions      int             `json:"activeSessions"`
	ActiveConflicts     int             `json:"activeConflicts"`
	ActiveCoordinations int             `json:"activeCoordinations"`
	SystemHealth        conflict.Health `json:"systemHealth"`
}

// Status is the coordination system view.
type Status struct {
	Overview        Overview                          `json:"overview"`
	Conflicts       []conflict.Conflict               `json:"conflicts"`
	AutoResolutions []conflict.Resolution             `json:"autoResolutions"`
	Coordinations   map[string]*registry.Coordination `json:"activeCoordinations"`
	RecentActivity  []Entry                           `json:"recentActivity,omitempty"`
}

// Manager starts, advances and resolves coordinations stored in the
// registry document, and mirrors each step into the coordination log.
type Manager struct {
	store    *registry.Store
	log      *Log
	detector *conflict.Detector
	bus      *event.Bus
	logger   *logging.Logger
	now      func() time.Time
	newMsgID func() string
}

// NewManager creates a Manager backed by store.
func NewManager(store *registry.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		logger:   logging.NopLogger(),
		now:      time.Now,
		newMsgID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("coordination")
	return m
}

// Coordinate links sessionIDs in a new active coordination. Every session
// must exist; duplicate ids are collapsed.
func (m *Manager) Coordinate(ctx context.Context, sessionIDs []string, coordType string, coordContext map[string]any) (*registry.Coordination, error) {
	ids := dedupe(sessionIDs)
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("at least one session id is required").WithField("sessionIds")
	}
	if coordType == "" {
		coordType = DefaultType
	}
	if coordContext == nil {
		coordContext = map[string]any{}
	}

	var coord registry.Coordination
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		for _, id := range ids {
			if _, ok := reg.Session(id); !ok {
				return apperrors.NewNotFoundError("session", id)
			}
		}

		now := m.now().UTC()
		id := NewID(now)
		for reg.Coordinations[id] != nil {
			id = NewID(now)
		}

		c := &registry.Coordination{
			ID:        id,
			Type:      coordType,
			Sessions:  ids,
			StartTime: now,
			Status:    registry.CoordinationActive,
			Context:   coordContext,
			Messages:  []registry.Message{},
		}
		reg.Coordinations[id] = c
		for _, sid := range ids {
			sess := reg.Sessions[sid]
			sess.Coordinations = append(sess.Coordinations, id)
			sess.Touch(now)
		}
		coord = *c
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("coordination started",
		"coordination_id", coord.ID,
		"type", coord.Type,
		"sessions", coord.Sessions,
	)
	m.record(ctx, ActionStarted, fmt.Sprintf("Started %s coordination", coord.Type), coord.Sessions, nil)
	m.bus.Publish(event.NewCoordinationStartedEvent(coord.ID, coord.Type, coord.Sessions))
	return &coord, nil
}

// SendMessage appends a message from a participant. Messages can be sent
// to resolved coordinations; only the status is terminal.
func (m *Manager) SendMessage(ctx context.Context, coordinationID, fromSession, text string, msgType registry.MessageType) (*registry.Message, error) {
	if msgType == "" {
		msgType = registry.MessageInfo
	}
	if _, err := registry.ParseMessageType(string(msgType)); err != nil {
		return nil, apperrors.NewValidationError("invalid message type").
			WithField("type").
			WithValue(string(msgType))
	}

	var msg registry.Message
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		c, ok := reg.Coordinations[coordinationID]
		if !ok {
			return apperrors.NewNotFoundError("coordination", coordinationID)
		}
		if !c.HasParticipant(fromSession) {
			return apperrors.NewCoordinationError("cannot send message", ErrNotParticipant).
				WithCoordinationID(coordinationID).
				WithSessionID(fromSession)
		}

		now := m.now().UTC()
		msg = registry.Message{
			ID:          m.newMsgID(),
			Timestamp:   now,
			FromSession: fromSession,
			Message:     text,
			Type:        msgType,
		}
		c.Messages = append(c.Messages, msg)
		if sess, ok := reg.Session(fromSession); ok {
			sess.Touch(now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithSession(fromSession).Info("coordination message sent",
		"coordination_id", coordinationID,
		"message_id", msg.ID,
		"type", string(msg.Type),
	)
	m.record(ctx, ActionMessage, text, []string{fromSession}, nil)
	m.bus.Publish(event.NewCoordinationMessageEvent(coordinationID, msg.ID, fromSession, msg.Type))
	return &msg, nil
}

// Resolve marks a coordination resolved. Resolution is terminal; resolving
// again returns ErrAlreadyResolved and changes nothing.
func (m *Manager) Resolve(ctx context.Context, coordinationID, approach, resolvedBy string) (*registry.Coordination, error) {
	if approach == "" {
		return nil, apperrors.NewValidationError("resolution approach is required").WithField("approach")
	}
	if resolvedBy == "" {
		resolvedBy = DefaultResolver
	}

	var coord registry.Coordination
	err := m.store.Update(ctx, func(reg *registry.Registry) error {
		c, ok := reg.Coordinations[coordinationID]
		if !ok {
			return apperrors.NewNotFoundError("coordination", coordinationID)
		}
		if c.Status == registry.CoordinationResolved {
			return apperrors.NewCoordinationError("cannot resolve", ErrAlreadyResolved).
				WithCoordinationID(coordinationID)
		}
		c.Status = registry.CoordinationResolved
		c.Resolution = &registry.Resolution{
			Approach:   approach,
			ResolvedBy: resolvedBy,
			ResolvedAt: m.now().UTC(),
		}
		coord = *c
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("coordination resolved",
		"coordination_id", coordinationID,
		"approach", approach,
		"resolved_by", resolvedBy,
	)
	m.record(ctx, ActionResolved, "Resolved via "+approach, coord.Sessions, approach)
	m.bus.Publish(event.NewCoordinationResolvedEvent(coordinationID, approach, resolvedBy))
	return &coord, nil
}

// Get returns one coordination.
func (m *Manager) Get(ctx context.Context, coordinationID string) (*registry.Coordination, error) {
	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := reg.Coordinations[coordinationID]
	if !ok {
		return nil, apperrors.NewNotFoundError("coordination", coordinationID)
	}
	return c, nil
}

// List returns all coordinations, oldest first.
func (m *Manager) List(ctx context.Context) ([]*registry.Coordination, error) {
	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*registry.Coordination, 0, len(reg.Coordinations))
	for _, c := range reg.Coordinations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Status combines conflict analysis with the coordinations. Automatic
// resolutions are proposed, not applied. With includeHistory the newest
// log entries are attached.
func (m *Manager) Status(ctx context.Context, includeHistory bool) (*Status, error) {
	detector := m.detector
	if detector == nil {
		d, err := conflict.NewDetector(m.store, conflict.WithLogger(m.logger), conflict.WithClock(m.now))
		if err != nil {
			return nil, err
		}
		detector = d
	}

	reg, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	a := detector.AnalyzeRegistry(reg)

	active := 0
	for _, c := range reg.Coordinations {
		if c.Status == registry.CoordinationActive {
			active++
		}
	}

	st := &Status{
		Overview: Overview{
			ActiveSessions:      a.Status.TotalActiveSessions,
			ActiveConflicts:     len(a.Conflicts),
			ActiveCoordinations: active,
			SystemHealth:        a.Health,
		},
		Conflicts:       a.Conflicts,
		AutoResolutions: a.Proposed,
		Coordinations:   reg.Coordinations,
	}

	if includeHistory {
		st.RecentActivity = []Entry{}
		if m.log != nil {
			entries, err := m.log.Entries(ctx, recentActivityLimit)
			if err != nil {
				return nil, err
			}
			st.RecentActivity = entries
		}
	}
	return st, nil
}

// record writes to the coordination log. The registry is already saved, so
// a log failure is reported but does not fail the operation.
func (m *Manager) record(ctx context.Context, action, details string, sessionIDs []string, resolution any) {
	if m.log == nil {
		return
	}
	if err := m.log.Record(ctx, action, details, sessionIDs, resolution); err != nil {
		m.logger.Warn("failed to write coordination log", "action", action, "error", err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
