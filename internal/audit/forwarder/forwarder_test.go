package forwarder_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"catalog/internal/audit"
	"catalog/internal/audit/forwarder"
	"catalog/internal/catalog"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	err := p.err
	p.mu.Unlock()
	if promise != nil {
		promise(r, err)
	}
}

func (p *fakeProducer) produced() []*kgo.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*kgo.Record{}, p.records...)
}

func record(operationID string, action audit.Action) audit.Record {
	return audit.NewRecord("alice", action, catalog.ResourceSample).
		Operation(operationID).
		Build()
}

func drain(t *testing.T, fwd *forwarder.Forwarder, tap chan audit.Record, recs ...audit.Record) {
	t.Helper()
	for _, rec := range recs {
		tap <- rec
	}
	close(tap)

	done := make(chan error, 1)
	go func() { done <- fwd.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("forwarder did not drain the tap")
	}
}

func TestForwarderRoutesByCategory(t *testing.T) {
	producer := &fakeProducer{}
	tap := make(chan audit.Record, 4)
	fwd := forwarder.New(producer, tap, "catalog.audit")

	drain(t, fwd, tap,
		record("op-1", audit.ActionCreate),
		record("op-1", audit.ActionSearch),
		record("op-1", audit.ActionDelete),
	)

	produced := producer.produced()
	require.Len(t, produced, 3)
	assert.Equal(t, "catalog.audit.write", produced[0].Topic)
	assert.Equal(t, "catalog.audit.read", produced[1].Topic)
	assert.Equal(t, "catalog.audit.write", produced[2].Topic)
}

func TestForwarderKeysByOperation(t *testing.T) {
	producer := &fakeProducer{}
	tap := make(chan audit.Record, 2)
	fwd := forwarder.New(producer, tap, "catalog.audit")

	rec := record("op-42", audit.ActionInfo)
	drain(t, fwd, tap, rec)

	produced := producer.produced()
	require.Len(t, produced, 1)
	assert.Equal(t, []byte("op-42"), produced[0].Key)

	var decoded audit.Record
	require.NoError(t, json.Unmarshal(produced[0].Value, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, "alice", decoded.UserID)
}

func TestForwarderProduceFailureIsSwallowed(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker gone")}
	tap := make(chan audit.Record, 1)
	fwd := forwarder.New(producer, tap, "catalog.audit")

	drain(t, fwd, tap, record("op-1", audit.ActionInfo))
	assert.Len(t, producer.produced(), 1, "failure is logged, Run keeps going")
}

func TestForwarderStopsOnContextCancel(t *testing.T) {
	producer := &fakeProducer{}
	tap := make(chan audit.Record)
	fwd := forwarder.New(producer, tap, "catalog.audit")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop on cancel")
	}
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, forwarder.CategoryWrite, forwarder.Categorize(audit.ActionCreate))
	assert.Equal(t, forwarder.CategoryWrite, forwarder.Categorize(audit.ActionUpdate))
	assert.Equal(t, forwarder.CategoryWrite, forwarder.Categorize(audit.ActionDelete))
	assert.Equal(t, forwarder.CategoryRead, forwarder.Categorize(audit.ActionInfo))
	assert.Equal(t, forwarder.CategoryRead, forwarder.Categorize(audit.ActionFacet))
}

func TestTopics(t *testing.T) {
	fwd := forwarder.New(&fakeProducer{}, nil, "catalog.audit")
	assert.Equal(t, []string{"catalog.audit.write", "catalog.audit.read"}, fwd.Topics())
}
