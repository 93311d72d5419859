package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"catalog/internal/platform/metrics"
	"catalog/pkg/domain"
	dErrors "catalog/pkg/domain-errors"
)

// DefaultMaxOpenOperations is the threshold of concurrently open operation
// buffers at which an appending operation flushes its own buffer early.
//
// Note the unit: this counts open operations, not buffered records. That
// matches the observed behavior of the system this was lifted from; see
// DESIGN.md before "fixing" it.
const DefaultMaxOpenOperations = 50

// Trail is the audit side channel. Construct one per process and pass it
// by reference; it is safe for concurrent use.
type Trail struct {
	store   RecordStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	maxOpen int
	tap     chan<- Record

	mu      sync.Mutex
	buffers map[string]*buffer
}

// buffer is the ordered record list of one open operation. Its own mutex
// serializes append/threshold-check/flush for that operation without
// blocking other operations.
type buffer struct {
	mu      sync.Mutex
	records []Record
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the logger for swallowed persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

// WithMaxOpenOperations overrides the open-operation flush threshold.
func WithMaxOpenOperations(n int) Option {
	return func(t *Trail) {
		if n > 0 {
			t.maxOpen = n
		}
	}
}

// WithTap mirrors every persisted record into ch without blocking: when ch
// is full the record is dropped from the tap (never from the store). The
// Kafka forwarder consumes this.
func WithTap(ch chan<- Record) Option {
	return func(t *Trail) { t.tap = ch }
}

// NewTrail creates an audit trail over the given store.
func NewTrail(store RecordStore, opts ...Option) *Trail {
	t := &Trail{
		store:   store,
		logger:  slog.Default(),
		maxOpen: DefaultMaxOpenOperations,
		buffers: make(map[string]*buffer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin opens an empty record buffer for the given operation. Calling
// Begin twice for the same id is a no-op.
func (t *Trail) Begin(operationID string) {
	if operationID == "" {
		return
	}
	t.mu.Lock()
	if _, ok := t.buffers[operationID]; !ok {
		t.buffers[operationID] = &buffer{}
	}
	open := len(t.buffers)
	t.mu.Unlock()
	t.metrics.SetOpenBatches(open)
}

// Record persists one audit record. If a buffer is open for
// rec.OperationID the record is appended to it; otherwise it is written
// immediately. Failures are logged and swallowed: the caller's primary
// operation must never be failed or blocked by its audit trail.
func (t *Trail) Record(ctx context.Context, rec Record) {
	rec = stamp(rec)

	buf, open := t.lookup(rec.OperationID)
	if !open {
		if err := t.store.InsertOne(ctx, rec); err != nil {
			t.logger.ErrorContext(ctx, "audit write failed, record dropped",
				"operation_id", rec.OperationID, "action", rec.Action,
				"resource", rec.Resource, "error", err)
			t.metrics.IncAuditRecord("dropped")
			t.metrics.IncSideChannelError("audit")
			return
		}
		t.metrics.IncAuditRecord("written")
		t.offerTap(rec)
		return
	}

	// Append, then check the open-operation threshold, then maybe flush —
	// atomically for this operation, so parallel callers on one operation
	// id cannot double flush or lose appends.
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.records = append(buf.records, rec)
	t.metrics.IncAuditRecord("buffered")

	if t.openOperations() >= t.maxOpen {
		t.flushLocked(ctx, rec.OperationID, buf, "overflow")
	}
}

// End flushes and discards the buffer of the given operation. The buffer
// is removed whether or not the flush succeeds; flush failure drops the
// whole batch and is only logged. The one caller-visible error is ending
// an operation that was never begun.
func (t *Trail) End(ctx context.Context, operationID string) error {
	t.mu.Lock()
	buf, ok := t.buffers[operationID]
	if ok {
		delete(t.buffers, operationID)
	}
	open := len(t.buffers)
	t.mu.Unlock()

	if !ok {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"no audit batch begun for operation %s", operationID)
	}
	t.metrics.SetOpenBatches(open)

	buf.mu.Lock()
	defer buf.mu.Unlock()
	t.flushLocked(ctx, operationID, buf, "end")
	return nil
}

// flushLocked writes out and clears buf.records. Callers hold buf.mu.
func (t *Trail) flushLocked(ctx context.Context, operationID string, buf *buffer, cause string) {
	if len(buf.records) == 0 {
		return
	}
	records := buf.records
	buf.records = nil

	start := time.Now()
	if err := t.store.InsertMany(ctx, records); err != nil {
		// The whole batch is dropped; not partially written, not retried.
		t.logger.ErrorContext(ctx, "audit batch flush failed, batch dropped",
			"operation_id", operationID, "records", len(records),
			"cause", cause, "error", err)
		t.metrics.IncAuditFlush("failed")
		t.metrics.IncSideChannelError("audit")
		return
	}
	t.metrics.ObserveAuditFlush(time.Since(start))
	if cause == "overflow" {
		t.metrics.IncAuditFlush("overflow")
	} else {
		t.metrics.IncAuditFlush("ok")
	}
	for _, rec := range records {
		t.offerTap(rec)
	}
}

func (t *Trail) lookup(operationID string) (*buffer, bool) {
	if operationID == "" {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	buf, ok := t.buffers[operationID]
	return buf, ok
}

func (t *Trail) openOperations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffers)
}

func (t *Trail) offerTap(rec Record) {
	if t.tap == nil {
		return
	}
	select {
	case t.tap <- rec:
	default:
		t.metrics.IncSideChannelError("forwarder")
	}
}

func stamp(rec Record) Record {
	if rec.ID == "" {
		rec.ID = domain.NewUUID(domain.KindAudit)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return rec
}
