// Package memory provides an in-memory audit record store for tests and
// the demo wiring.
package memory

import (
	"context"
	"sync"

	"catalog/internal/audit"
)

type Store struct {
	mu      sync.RWMutex
	records []audit.Record

	failNext error
}

func New() *Store {
	return &Store{}
}

// FailNext makes the next write return err, once. Tests use it to exercise
// the trail's drop-on-failure policy.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) InsertOne(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *Store) InsertMany(_ context.Context, recs []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.records = append(s.records, recs...)
	return nil
}

// All returns a copy of every stored record in insertion order.
func (s *Store) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...)
}

// ByOperation returns the records of one operation, in insertion order.
func (s *Store) ByOperation(operationID string) []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, rec := range s.records {
		if rec.OperationID == operationID {
			out = append(out, rec)
		}
	}
	return out
}

// Recent returns the most recent n records.
func (s *Store) Recent(_ context.Context, n int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.records) - n
	if start < 0 {
		start = 0
	}
	return append([]audit.Record{}, s.records[start:]...), nil
}

func (s *Store) takeFailure() error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	return nil
}
