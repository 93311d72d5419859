// Package forwarder drains the audit trail's tap channel into Kafka so that
// downstream consumers (compliance tooling, search indexers) see the trail
// without touching the primary store. Forwarding is best effort: a produce
// failure is logged and counted, never retried, and never surfaces to the
// operation that produced the record.
package forwarder

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"catalog/internal/audit"
	"catalog/internal/platform/metrics"
)

// Category buckets audit actions into the topic families consumers
// subscribe to.
type Category string

const (
	CategoryWrite Category = "write"
	CategoryRead  Category = "read"
)

// Categorize maps an action to its topic category.
func Categorize(action audit.Action) Category {
	switch action {
	case audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete:
		return CategoryWrite
	default:
		return CategoryRead
	}
}

// Producer is the slice of the kgo client the forwarder uses. *kgo.Client
// satisfies it; tests substitute a fake.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Forwarder consumes records from the trail's tap and produces them to
// per-category topics: "<prefix>.write" and "<prefix>.read". Records are
// keyed by operation id, so one operation's records land in one partition
// in order; there is no ordering across operations.
type Forwarder struct {
	producer    Producer
	tap         <-chan audit.Record
	topicPrefix string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Forwarder.
type Option func(*Forwarder)

func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}

// New creates a forwarder draining tap into producer.
func New(producer Producer, tap <-chan audit.Record, topicPrefix string, opts ...Option) *Forwarder {
	f := &Forwarder{
		producer:    producer,
		tap:         tap,
		topicPrefix: topicPrefix,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Topics returns the topics the forwarder produces to, for startup
// bootstrap.
func (f *Forwarder) Topics() []string {
	return []string{
		f.topicPrefix + "." + string(CategoryWrite),
		f.topicPrefix + "." + string(CategoryRead),
	}
}

// Run drains the tap until ctx is cancelled or the tap is closed.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-f.tap:
			if !ok {
				return nil
			}
			f.forward(ctx, rec)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, rec audit.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		f.drop(ctx, rec, err)
		return
	}

	topic := f.topicPrefix + "." + string(Categorize(rec.Action))
	f.producer.Produce(ctx, &kgo.Record{
		Topic: topic,
		Key:   []byte(rec.OperationID),
		Value: payload,
	}, func(r *kgo.Record, err error) {
		if err != nil {
			f.drop(ctx, rec, err)
		}
	})
}

func (f *Forwarder) drop(ctx context.Context, rec audit.Record, err error) {
	f.metrics.IncSideChannelError("forwarder")
	f.logger.ErrorContext(ctx, "audit record not forwarded",
		"record_id", rec.ID,
		"operation_id", rec.OperationID,
		"error", err)
}
