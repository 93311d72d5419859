// Package audit records who did what against the catalog. Records are
// buffered per logical operation and written out in one batch, on a
// best-effort basis: audit persistence failure never fails the caller's
// primary operation.
package audit

import (
	"context"
	"time"

	"catalog/internal/catalog"
	"catalog/pkg/domain"
)

// Action enumerates the auditable operation kinds. Closed set.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionInfo     Action = "INFO"
	ActionSearch   Action = "SEARCH"
	ActionCount    Action = "COUNT"
	ActionDistinct Action = "DISTINCT"
	ActionFacet    Action = "FACET"
)

// Result is the outcome of the audited call.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultError   Result = "ERROR"
)

// Status carries the outcome and, for failures, the error text.
type Status struct {
	Result Result
	Error  string
}

// Param is one ordered key/value pair of the audited call's parameters.
// An ordered slice rather than a map: parameter order is part of the
// record and survives serialization.
type Param struct {
	Key   string
	Value any
}

// Record is one immutable audit trail entry. OperationID correlates every
// record produced by one logical client request.
type Record struct {
	ID           string
	OperationID  string
	UserID       string
	APIVersion   domain.APIVersion
	Action       Action
	Resource     catalog.Resource
	ResourceID   string
	ResourceUUID string
	StudyID      string
	StudyUUID    string
	Params       []Param
	Status       Status
	Timestamp    time.Time
	Attributes   map[string]any
}

// RecordStore is the persistence surface the trail writes through.
type RecordStore interface {
	InsertOne(ctx context.Context, rec Record) error
	InsertMany(ctx context.Context, recs []Record) error
}

// Builder assembles a Record. One builder API replaces the overloaded
// auditCreate/auditSearch/... call family: callers state the action once
// and chain the rest.
type Builder struct {
	rec Record
}

// NewRecord starts a record for the given actor, action and resource.
func NewRecord(userID string, action Action, resource catalog.Resource) *Builder {
	return &Builder{rec: Record{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		APIVersion: domain.DefaultVersion(),
		Status:     Status{Result: ResultSuccess},
	}}
}

// Operation attaches the correlation id of the logical request.
func (b *Builder) Operation(operationID string) *Builder {
	b.rec.OperationID = operationID
	return b
}

// Entity names the entity acted on.
func (b *Builder) Entity(id, uuid string) *Builder {
	b.rec.ResourceID = id
	b.rec.ResourceUUID = uuid
	return b
}

// Study names the study scope of the call.
func (b *Builder) Study(id, uuid string) *Builder {
	b.rec.StudyID = id
	b.rec.StudyUUID = uuid
	return b
}

// APIVersion overrides the default API version.
func (b *Builder) APIVersion(v domain.APIVersion) *Builder {
	b.rec.APIVersion = v
	return b
}

// Param appends one call parameter, preserving call-site order.
func (b *Builder) Param(key string, value any) *Builder {
	b.rec.Params = append(b.rec.Params, Param{Key: key, Value: value})
	return b
}

// Attr sets a free-form attribute.
func (b *Builder) Attr(key string, value any) *Builder {
	if b.rec.Attributes == nil {
		b.rec.Attributes = make(map[string]any)
	}
	b.rec.Attributes[key] = value
	return b
}

// Failure marks the record as failed with the given error.
func (b *Builder) Failure(err error) *Builder {
	b.rec.Status = Status{Result: ResultError}
	if err != nil {
		b.rec.Status.Error = err.Error()
	}
	return b
}

// Build stamps id and timestamp and returns the finished record.
func (b *Builder) Build() Record {
	rec := b.rec
	if rec.ID == "" {
		rec.ID = domain.NewUUID(domain.KindAudit)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return rec
}
