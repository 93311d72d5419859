package audit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/catalog"
	"catalog/pkg/domain"
)

func TestBuilderDefaults(t *testing.T) {
	rec := NewRecord("alice", ActionCreate, catalog.ResourceSample).Build()

	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, ActionCreate, rec.Action)
	assert.Equal(t, catalog.ResourceSample, rec.Resource)
	assert.Equal(t, domain.DefaultVersion(), rec.APIVersion)
	assert.Equal(t, ResultSuccess, rec.Status.Result)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())

	kind, ok := domain.KindOf(rec.ID)
	require.True(t, ok)
	assert.Equal(t, domain.KindAudit, kind)
}

func TestBuilderChaining(t *testing.T) {
	rec := NewRecord("alice", ActionUpdate, catalog.ResourceFile).
		Operation("op-1").
		Entity("F1", "uuid-1").
		Study("study-1", "study-uuid-1").
		Param("fields", "name,size").
		Param("limit", 10).
		Attr("requestId", "req-9").
		Build()

	assert.Equal(t, "op-1", rec.OperationID)
	assert.Equal(t, "F1", rec.ResourceID)
	assert.Equal(t, "uuid-1", rec.ResourceUUID)
	assert.Equal(t, "study-1", rec.StudyID)

	// Param order is part of the record.
	require.Len(t, rec.Params, 2)
	assert.Equal(t, "fields", rec.Params[0].Key)
	assert.Equal(t, "limit", rec.Params[1].Key)

	assert.Equal(t, "req-9", rec.Attributes["requestId"])
}

func TestBuilderFailure(t *testing.T) {
	rec := NewRecord("alice", ActionDelete, catalog.ResourceSample).
		Failure(errors.New("sample is in use")).
		Build()

	assert.Equal(t, ResultError, rec.Status.Result)
	assert.Equal(t, "sample is in use", rec.Status.Error)
}
