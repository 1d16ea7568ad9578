// Package permission records escalation requests from sub-sessions and
// resolves them by rule, by an explicit response, or by expiry when the
// owning session ends.
//
// A request moves from pending to approved, denied or expired exactly once.
// Approval appends the requested resource to the session's allowed paths.
package permission

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// ErrNotPending is returned when responding to a request that has already
// left the pending state.
var ErrNotPending = errors.New("permission request is not pending")

// Outcome is the result of a new request.
type Outcome struct {
	RequestID    string                 `json:"requestId"`
	AutoApproved bool                   `json:"autoApproved"`
	Status       registry.RequestStatus `json:"status"`
	Rules        []string               `json:"autoApprovalRules"`
}

// Broker creates and resolves permission requests.
type Broker struct {
	store  *registry.Store
	rules  Rules
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Broker.
type Option func(*Broker)

// WithRules replaces the default auto-approval rules.
func WithRules(r Rules) Option {
	return func(b *Broker) { b.rules = r }
}

// WithBus sets the bus that receives permission events.
func WithBus(bus *event.Bus) Option {
	return func(b *Broker) { b.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// NewBroker creates a Broker backed by store.
func NewBroker(store *registry.Store, opts ...Option) *Broker {
	b := &Broker{
		store:  store,
		rules:  DefaultRules(),
		logger: logging.NopLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("permission")
	return b
}

// Request records a request for resource on behalf of sessionID and applies
// the auto-approval rules. An unknown session is an error.
func (b *Broker) Request(ctx context.Context, sessionID, resource string, requestType registry.RequestType, justification string) (*Outcome, error) {
	if !requestType.Valid() {
		return nil, apperrors.NewValidationError("invalid request type").
			WithField("requestType").
			WithValue(string(requestType))
	}
	if resource == "" {
		return nil, apperrors.NewValidationError("requested resource cannot be empty").WithField("resource")
	}

	var out *Outcome
	err := b.store.Update(ctx, func(reg *registry.Registry) error {
		sess, ok := reg.Session(sessionID)
		if !ok {
			return apperrors.NewNotFoundError("session", sessionID)
		}
		now := b.now().UTC()

		req := &registry.PermissionRequest{
			ID:                b.newID(),
			SessionID:         sessionID,
			RequestType:       requestType,
			RequestedResource: resource,
			Justification:     justification,
			Status:            registry.StatusPending,
			RequestedAt:       now,
			AutoApprovalRules: b.rules.Match(resource, requestType),
			Restrictions:      []string{},
		}
		reg.Requests[req.ID] = req
		sess.PermissionRequests = append(sess.PermissionRequests, req.ID)
		sess.Touch(now)

		if len(req.AutoApprovalRules) > 0 {
			grant(sess, req, now, ResponderAutoApproval, "")
		}
		reg.AddHistory(now, registry.ActionPermissionRequest, sessionID, resource, "Request: "+string(requestType))

		out = &Outcome{
			RequestID:    req.ID,
			AutoApproved: req.Status == registry.StatusApproved,
			Status:       req.Status,
			Rules:        req.AutoApprovalRules,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.WithSession(sessionID).Info("permission requested",
		"request_id", out.RequestID,
		"resource", resource,
		"request_type", string(requestType),
		"auto_approved", out.AutoApproved,
	)
	b.bus.Publish(event.NewPermissionRequestedEvent(out.RequestID, sessionID, resource, requestType, out.AutoApproved))
	if out.AutoApproved {
		b.bus.Publish(event.NewPermissionResolvedEvent(out.RequestID, sessionID, registry.StatusApproved, ResponderAutoApproval))
	}
	return out, nil
}

// Approve grants a pending request and extends the session's allowed paths.
func (b *Broker) Approve(ctx context.Context, requestID, responder, reason string) (*registry.PermissionRequest, error) {
	return b.respond(ctx, requestID, func(reg *registry.Registry, now time.Time) (*registry.PermissionRequest, error) {
		return ApproveRequest(reg, now, requestID, responder, reason)
	})
}

// Deny refuses a pending request.
func (b *Broker) Deny(ctx context.Context, requestID, responder, reason string) (*registry.PermissionRequest, error) {
	return b.respond(ctx, requestID, func(reg *registry.Registry, now time.Time) (*registry.PermissionRequest, error) {
		return DenyRequest(reg, now, requestID, responder, reason)
	})
}

func (b *Broker) respond(ctx context.Context, requestID string, apply func(*registry.Registry, time.Time) (*registry.PermissionRequest, error)) (*registry.PermissionRequest, error) {
	var req registry.PermissionRequest
	err := b.store.Update(ctx, func(reg *registry.Registry) error {
		r, err := apply(reg, b.now().UTC())
		if err != nil {
			return err
		}
		req = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.WithSession(req.SessionID).Info("permission resolved",
		"request_id", requestID,
		"status", string(req.Status),
		"responded_by", req.RespondedBy,
	)
	b.bus.Publish(event.NewPermissionResolvedEvent(requestID, req.SessionID, req.Status, req.RespondedBy))
	return &req, nil
}

// Get returns one request.
func (b *Broker) Get(ctx context.Context, requestID string) (*registry.PermissionRequest, error) {
	reg, err := b.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	req, ok := reg.Requests[requestID]
	if !ok {
		return nil, apperrors.NewNotFoundError("permission request", requestID)
	}
	return req, nil
}

// List returns requests with the given status, or all when status is
// empty, oldest first.
func (b *Broker) List(ctx context.Context, status registry.RequestStatus) ([]*registry.PermissionRequest, error) {
	reg, err := b.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return reg.RequestsByStatus(status), nil
}

// ApproveRequest approves a pending request inside a loaded registry.
func ApproveRequest(reg *registry.Registry, now time.Time, requestID, responder, reason string) (*registry.PermissionRequest, error) {
	req, err := pendingRequest(reg, requestID)
	if err != nil {
		return nil, err
	}
	sess, ok := reg.Session(req.SessionID)
	if !ok {
		return nil, apperrors.NewNotFoundError("session", req.SessionID)
	}
	grant(sess, req, now, responder, reason)
	reg.AddHistory(now, registry.ActionPermissionApproved, req.SessionID, req.RequestedResource, "Approved by "+responder)
	return req, nil
}

// DenyRequest denies a pending request inside a loaded registry.
func DenyRequest(reg *registry.Registry, now time.Time, requestID, responder, reason string) (*registry.PermissionRequest, error) {
	req, err := pendingRequest(reg, requestID)
	if err != nil {
		return nil, err
	}
	req.Status = registry.StatusDenied
	req.RespondedAt = &now
	req.RespondedBy = responder
	req.ResponseReason = reason
	if sess, ok := reg.Session(req.SessionID); ok {
		sess.Touch(now)
	}

	details := "Denied by " + responder
	if reason != "" {
		details += ": " + reason
	}
	reg.AddHistory(now, registry.ActionPermissionDenied, req.SessionID, req.RequestedResource, details)
	return req, nil
}

// ExpireForSession forces every pending request owned by sessionID to
// expired and returns their ids.
func ExpireForSession(reg *registry.Registry, now time.Time, sessionID string) []string {
	var expired []string
	for _, req := range reg.RequestsByStatus(registry.StatusPending) {
		if req.SessionID != sessionID {
			continue
		}
		req.Status = registry.StatusExpired
		req.RespondedAt = &now
		req.RespondedBy = ResponderSessionEnd
		expired = append(expired, req.ID)
	}
	return expired
}

func pendingRequest(reg *registry.Registry, requestID string) (*registry.PermissionRequest, error) {
	req, ok := reg.Requests[requestID]
	if !ok {
		return nil, apperrors.NewNotFoundError("permission request", requestID)
	}
	if req.Status != registry.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, requestID, req.Status)
	}
	return req, nil
}

func grant(sess *registry.Session, req *registry.PermissionRequest, now time.Time, responder, reason string) {
	req.Status = registry.StatusApproved
	req.RespondedAt = &now
	req.RespondedBy = responder
	req.ResponseReason = reason
	if !slices.Contains(sess.AllowedPaths, req.RequestedResource) {
		sess.AllowedPaths = append(sess.AllowedPaths, req.RequestedResource)
	}
	sess.Touch(now)
}
