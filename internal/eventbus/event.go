// Package eventbus dispatches domain events synchronously to subscribed
// observers and tracks each delivery in persistent storage. Dispatch blocks
// the caller for its full duration; event persistence is a side channel
// whose failures are logged and never escalate to the caller.
package eventbus

import (
	"context"
	"fmt"
	"strings"

	"catalog/internal/catalog"
	dErrors "catalog/pkg/domain-errors"
)

// EventID builds the canonical event identifier for a resource/action pair,
// e.g. "sample.update".
func EventID(resource catalog.Resource, action string) string {
	return strings.ToLower(resource.String()) + "." + strings.ToLower(action)
}

// SubscriberStatus records one observer's delivery outcome on an event.
type SubscriberStatus struct {
	Ref       string
	Succeeded bool
	Error     string
}

// Event is one domain event. UUID, timestamps, Subscribers and Successful
// are owned by the bus: Notify overwrites whatever the caller put there.
type Event struct {
	ID               string
	UUID             string
	EventID          string
	OrganizationID   string
	Token            string
	UserID           string
	StudyFqn         string
	StudyUUID        string
	Result           any
	CreationDate     string
	ModificationDate string
	Subscribers      []SubscriberStatus
	Successful       bool
	Finished         bool
}

// Validate checks the caller-supplied fields. It runs before any state
// mutation or persistence, so a rejected event leaves no trace.
func (e *Event) Validate() error {
	var missing []string
	if e.EventID == "" {
		missing = append(missing, "eventId")
	}
	if e.OrganizationID == "" {
		missing = append(missing, "organizationId")
	}
	if e.Token == "" {
		missing = append(missing, "token")
	}
	if e.UserID == "" {
		missing = append(missing, "userId")
	}
	if e.StudyFqn == "" {
		missing = append(missing, "study")
	}
	if e.Result == nil {
		missing = append(missing, "result")
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"event is missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RecordStore is the persistence surface the bus writes through. All three
// calls are best effort from the caller's point of view: the bus logs their
// failures and carries on.
type RecordStore interface {
	InsertEvent(ctx context.Context, ev Event) error
	UpdateSubscriberStatus(ctx context.Context, eventUUID string, status SubscriberStatus) error
	MarkFinished(ctx context.Context, eventUUID string, successful bool) error
}

// Observer receives events for the ids it subscribed to. A non-nil error
// marks the delivery failed in the event's subscriber statuses; it does not
// stop delivery to later observers.
type Observer interface {
	// Ref identifies the observer in persisted subscriber statuses.
	Ref() string
	OnEvent(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc struct {
	Name string
	Fn   func(ctx context.Context, ev Event) error
}

func (o ObserverFunc) Ref() string { return o.Name }

func (o ObserverFunc) OnEvent(ctx context.Context, ev Event) error {
	return o.Fn(ctx, ev)
}

// Hook is the bus's extension point around dispatch. OnPublished runs after
// the event row is persisted and before any observer sees the event;
// OnFinished runs after the finished marker. Hook errors are logged and
// never escalate.
type Hook interface {
	OnPublished(ctx context.Context, ev Event) error
	OnFinished(ctx context.Context, ev Event) error
}

func subscriberRef(obs Observer) string {
	if ref := obs.Ref(); ref != "" {
		return ref
	}
	return fmt.Sprintf("%T", obs)
}
