package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	r, err := ParseResource("SAMPLE")
	require.NoError(t, err)
	assert.Equal(t, ResourceSample, r)

	_, err = ParseResource("sample")
	assert.Error(t, err, "resource names are uppercase only")

	_, err = ParseResource("WIDGET")
	assert.Error(t, err)
}

func TestQueryCloneDoesNotAlias(t *testing.T) {
	q := Query{StudyUID: 1}
	q.Set(FieldID, []string{"S1"})

	cp := q.Clone()
	cp.Set(FieldUUID, []string{"u1"})

	assert.Len(t, q.Filters, 1, "clone must not write back into the original")
	assert.Len(t, cp.Filters, 2)
}

func TestQueryVersioned(t *testing.T) {
	assert.False(t, Query{}.Versioned())
	assert.True(t, Query{Version: 2}.Versioned())
	assert.True(t, Query{AllVersions: true}.Versioned())
}

func TestProjectionKeep(t *testing.T) {
	// Empty include means all fields; nothing to force.
	p := Projection{}.Keep(FieldID)
	assert.Empty(t, p.Include)

	// A narrowing include must gain the kept field.
	p = Projection{Include: []string{"name"}}.Keep(FieldID)
	assert.ElementsMatch(t, []string{"name", FieldID}, p.Include)

	// Already included: no duplicate.
	p = Projection{Include: []string{FieldID}}.Keep(FieldID)
	assert.Equal(t, []string{FieldID}, p.Include)

	// The kept field is dropped from the exclude list.
	p = Projection{Exclude: []string{FieldID, "name"}}.Keep(FieldID)
	assert.Equal(t, []string{"name"}, p.Exclude)
}
