package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"catalog/internal/platform/metrics"
	"catalog/pkg/domain"
)

// Bus delivers events synchronously, in subscriber registration order, and
// records the lifecycle of every dispatch in the RecordStore. One Bus is
// constructed at startup and shared by reference; it has no global instance.
type Bus struct {
	store   RecordStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	hook    Hook

	mu          sync.RWMutex
	subscribers map[string][]Observer
}

// Option configures a Bus.
type Option func(*Bus)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithHook installs the dispatch extension point. At most one hook; compose
// externally if more are needed.
func WithHook(h Hook) Option {
	return func(b *Bus) { b.hook = h }
}

// New creates an event bus writing through store.
func New(store RecordStore, opts ...Option) *Bus {
	b := &Bus{
		store:       store,
		logger:      slog.Default(),
		tracer:      otel.Tracer("catalog/eventbus"),
		subscribers: make(map[string][]Observer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers an observer for an event id. Observers are delivered
// to in registration order.
func (b *Bus) Subscribe(eventID string, obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventID] = append(b.subscribers[eventID], obs)
}

// Notify validates, stamps and dispatches the event. It blocks until every
// observer registered for the event id has run. The returned error covers
// validation only; persistence failures along the dispatch path are logged
// and swallowed, and observer failures are reported through the event's
// subscriber statuses, not through the return value.
//
// Caller-supplied uuid, timestamps, subscriber statuses and success flag
// are discarded: the bus owns those fields.
func (b *Bus) Notify(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	ctx, span := b.tracer.Start(ctx, "eventbus.notify",
		trace.WithAttributes(attribute.String("event.id", ev.EventID)))
	defer span.End()

	b.stamp(ev)
	b.metrics.IncEventNotified(ev.EventID)

	b.publish(ctx, *ev)

	allOK := true
	for _, obs := range b.observersFor(ev.EventID) {
		status := SubscriberStatus{Ref: subscriberRef(obs), Succeeded: true}
		if err := obs.OnEvent(ctx, *ev); err != nil {
			status.Succeeded = false
			status.Error = err.Error()
			allOK = false
			b.metrics.IncSubscriberFailure(ev.EventID)
			b.logger.ErrorContext(ctx, "event subscriber failed",
				"event_id", ev.EventID,
				"event_uuid", ev.UUID,
				"subscriber", status.Ref,
				"error", err)
		}
		ev.Subscribers = append(ev.Subscribers, status)
		b.recordStatus(ctx, ev.UUID, status)
	}
	ev.Successful = allOK

	b.finish(ctx, *ev)
	return nil
}

func (b *Bus) stamp(ev *Event) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	ev.UUID = domain.NewUUID(domain.KindEvent)
	ev.CreationDate = now
	ev.ModificationDate = now
	ev.Subscribers = nil
	ev.Successful = false
	ev.Finished = false
}

func (b *Bus) observersFor(eventID string) []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers[eventID]
}

// publish persists the event row and runs the pre hook.
func (b *Bus) publish(ctx context.Context, ev Event) {
	if err := b.store.InsertEvent(ctx, ev); err != nil {
		b.sideChannelFailure(ctx, ev, "event insert failed", err)
	}
	if b.hook != nil {
		if err := b.hook.OnPublished(ctx, ev); err != nil {
			b.sideChannelFailure(ctx, ev, "event pre hook failed", err)
		}
	}
}

func (b *Bus) recordStatus(ctx context.Context, eventUUID string, status SubscriberStatus) {
	if err := b.store.UpdateSubscriberStatus(ctx, eventUUID, status); err != nil {
		b.metrics.IncSideChannelError("event")
		b.logger.ErrorContext(ctx, "event subscriber status update failed",
			"event_uuid", eventUUID,
			"subscriber", status.Ref,
			"error", err)
	}
}

// finish persists the finished marker and runs the post hook.
func (b *Bus) finish(ctx context.Context, ev Event) {
	ev.ModificationDate = time.Now().UTC().Format(time.RFC3339Nano)
	ev.Finished = true
	if err := b.store.MarkFinished(ctx, ev.UUID, ev.Successful); err != nil {
		b.sideChannelFailure(ctx, ev, "event finished marker failed", err)
	}
	if b.hook != nil {
		if err := b.hook.OnFinished(ctx, ev); err != nil {
			b.sideChannelFailure(ctx, ev, "event post hook failed", err)
		}
	}
}

func (b *Bus) sideChannelFailure(ctx context.Context, ev Event, msg string, err error) {
	b.metrics.IncSideChannelError("event")
	b.logger.ErrorContext(ctx, msg,
		"event_id", ev.EventID,
		"event_uuid", ev.UUID,
		"error", err)
}
