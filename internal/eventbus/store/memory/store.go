// Package memory provides an in-memory event store for tests and the demo
// wiring.
package memory

import (
	"context"
	"fmt"
	"sync"

	"catalog/internal/eventbus"
	"catalog/pkg/platform/sentinel"
)

type Store struct {
	mu     sync.RWMutex
	events []eventbus.Event

	failInsert   error
	failStatus   error
	failFinished error
}

func New() *Store {
	return &Store{}
}

// Fail arms persistent failures on individual store calls. Tests use it to
// prove the bus swallows side-channel errors.
func (s *Store) Fail(insert, status, finished error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsert = insert
	s.failStatus = status
	s.failFinished = finished
}

func (s *Store) InsertEvent(_ context.Context, ev eventbus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) UpdateSubscriberStatus(_ context.Context, eventUUID string, status eventbus.SubscriberStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStatus != nil {
		return s.failStatus
	}
	ev, err := s.findLocked(eventUUID)
	if err != nil {
		return err
	}
	for i, st := range ev.Subscribers {
		if st.Ref == status.Ref {
			ev.Subscribers[i] = status
			return nil
		}
	}
	ev.Subscribers = append(ev.Subscribers, status)
	return nil
}

func (s *Store) MarkFinished(_ context.Context, eventUUID string, successful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFinished != nil {
		return s.failFinished
	}
	ev, err := s.findLocked(eventUUID)
	if err != nil {
		return err
	}
	ev.Successful = successful
	ev.Finished = true
	return nil
}

// All returns a copy of every stored event in insertion order.
func (s *Store) All() []eventbus.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]eventbus.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByUUID returns a copy of one stored event.
func (s *Store) ByUUID(eventUUID string) (eventbus.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.UUID == eventUUID {
			return ev, true
		}
	}
	return eventbus.Event{}, false
}

func (s *Store) findLocked(eventUUID string) (*eventbus.Event, error) {
	for i := range s.events {
		if s.events[i].UUID == eventUUID {
			return &s.events[i], nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", eventUUID, sentinel.ErrNotFound)
}
