// Package manager glues the three catalog services together for the fetch
// path: resolve a batch of identifiers, audit every hit under one operation
// id, and announce the access on the event bus.
package manager

import (
	"context"
	"log/slog"
	"strconv"

	"catalog/internal/audit"
	"catalog/internal/catalog"
	"catalog/internal/catalog/resolver"
	"catalog/internal/eventbus"
	"catalog/pkg/domain"
)

// Manager serves batch entity fetches for one resource kind.
type Manager[E catalog.Entry] struct {
	resource catalog.Resource
	resolver *resolver.Resolver[E]
	trail    *audit.Trail
	bus      *eventbus.Bus
	logger   *slog.Logger
}

// Option configures a Manager.
type Option[E catalog.Entry] func(*Manager[E])

func WithLogger[E catalog.Entry](l *slog.Logger) Option[E] {
	return func(m *Manager[E]) { m.logger = l }
}

// New creates a manager. Trail and bus are required collaborators; they are
// shared process-wide instances handed in by the caller.
func New[E catalog.Entry](resource catalog.Resource, res *resolver.Resolver[E], trail *audit.Trail, bus *eventbus.Bus, opts ...Option[E]) *Manager[E] {
	m := &Manager[E]{
		resource: resource,
		resolver: res,
		trail:    trail,
		bus:      bus,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetRequest carries the parameters of one batch fetch.
type GetRequest struct {
	OrganizationID string
	StudyFqn       string
	StudyUID       int64
	StudyUUID      string
	IDs            []string
	Query          catalog.Query
	Projection     catalog.Projection
	User           string
	Token          string
	IgnoreMissing  bool
}

// Get resolves req.IDs for req.User, auditing each returned entry under a
// fresh operation id and notifying a "<resource>.info" event afterwards.
// The audit batch is always finished, on success and on failure alike.
func (m *Manager[E]) Get(ctx context.Context, req GetRequest) (resolver.Resolution[E], error) {
	operationID := domain.NewUUID(domain.KindAudit)
	m.trail.Begin(operationID)
	defer func() {
		if err := m.trail.End(ctx, operationID); err != nil {
			m.logger.ErrorContext(ctx, "audit batch not finished",
				"operation_id", operationID, "error", err)
		}
	}()

	res, err := m.resolver.Resolve(ctx, req.StudyUID, req.IDs, req.Query, req.Projection, req.User, req.IgnoreMissing)
	if err != nil {
		m.auditFailure(ctx, operationID, req, err)
		return resolver.Resolution[E]{}, err
	}

	for _, e := range res.Found() {
		rec := audit.NewRecord(req.User, audit.ActionInfo, m.resource).
			Operation(operationID).
			Entity(e.EntryID(), e.EntryUUID()).
			Study(req.StudyFqn, req.StudyUUID).
			Param("id", e.EntryID()).
			Build()
		m.trail.Record(ctx, rec)
	}

	m.notify(ctx, req, res)
	return res, nil
}

// auditFailure writes one ERROR record covering the whole id list.
func (m *Manager[E]) auditFailure(ctx context.Context, operationID string, req GetRequest, cause error) {
	rec := audit.NewRecord(req.User, audit.ActionInfo, m.resource).
		Operation(operationID).
		Study(req.StudyFqn, req.StudyUUID).
		Param("ids", req.IDs).
		Failure(cause).
		Build()
	m.trail.Record(ctx, rec)
}

func (m *Manager[E]) notify(ctx context.Context, req GetRequest, res resolver.Resolution[E]) {
	ev := &eventbus.Event{
		EventID:        eventbus.EventID(m.resource, string(audit.ActionInfo)),
		OrganizationID: req.OrganizationID,
		Token:          req.Token,
		UserID:         req.User,
		StudyFqn:       req.StudyFqn,
		StudyUUID:      req.StudyUUID,
		Result:         map[string]string{"found": strconv.Itoa(len(res.Found())), "missing": strconv.Itoa(len(res.Missing()))},
	}
	if err := m.bus.Notify(ctx, ev); err != nil {
		// Validation failures only; dispatch itself never errors.
		m.logger.ErrorContext(ctx, "event not published",
			"event_id", ev.EventID, "error", err)
	}
}
