package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/catalog"
	"catalog/internal/catalog/entity"
	"catalog/internal/catalog/store/memory"
	"catalog/pkg/domain"
)

// With no redis client the decorator must be invisible.
func TestNilClientPassesThrough(t *testing.T) {
	inner := memory.New[entity.Document](nil)
	inner.Add(1, entity.Document{ID: "S1", UUID: domain.NewUUID(domain.KindSample), Version: 1})

	store := New[entity.Document](inner, nil, catalog.ResourceSample, time.Minute, nil)

	res, err := store.Search(context.Background(), catalog.Query{StudyUID: 1}, catalog.Projection{}, "alice")
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)

	store.Invalidate(context.Background()) // must not panic
}

func TestObserverRef(t *testing.T) {
	store := New[entity.Document](memory.New[entity.Document](nil), nil, catalog.ResourceSample, time.Minute, nil)
	assert.Equal(t, "cache-invalidate-sample", store.Observer().Ref())
}

func TestKeyIsolatesUsersAndQueries(t *testing.T) {
	store := New[entity.Document](memory.New[entity.Document](nil), nil, catalog.ResourceSample, time.Minute, nil)

	base := catalog.Query{StudyUID: 1}
	k1 := store.key(base, catalog.Projection{}, "alice")
	k2 := store.key(base, catalog.Projection{}, "bob")
	assert.NotEqual(t, k1, k2, "visibility subject is part of the key")

	other := base.Clone()
	other.Set(catalog.FieldID, []string{"S1"})
	k3 := store.key(other, catalog.Projection{}, "alice")
	assert.NotEqual(t, k1, k3, "filters are part of the key")

	again := base.Clone()
	assert.Equal(t, k1, store.key(again, catalog.Projection{}, "alice"), "equal queries share a key")
}
