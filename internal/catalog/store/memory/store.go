// Package memory provides an in-memory entity store. It backs unit tests
// and the demo wiring; the postgres store is the durable implementation.
package memory

import (
	"context"
	"sort"
	"sync"

	"catalog/internal/catalog"
)

// VisibleFunc is the authorization predicate folded into Search. It answers
// whether user may see e; the resolver never calls authorization directly.
type VisibleFunc[E catalog.Entry] func(user string, e E) bool

// MatchFunc resolves filters the store has no intrinsic knowledge of
// (anything beyond the identifier and version fields). Optional.
type MatchFunc[E catalog.Entry] func(e E, field string, value any) bool

// Store keeps entries in insertion order under a read/write mutex.
type Store[E catalog.Entry] struct {
	mu      sync.RWMutex
	entries []entry[E]
	visible VisibleFunc[E]
	match   MatchFunc[E]
}

type entry[E catalog.Entry] struct {
	studyUID int64
	value    E
}

// New creates an empty store. visible may be nil, in which case every
// entity is visible to every user.
func New[E catalog.Entry](visible VisibleFunc[E]) *Store[E] {
	return &Store[E]{visible: visible}
}

// WithMatcher installs a custom filter matcher for non-identifier fields.
func (s *Store[E]) WithMatcher(match MatchFunc[E]) *Store[E] {
	s.match = match
	return s
}

// Add inserts an entity under the given study scope.
func (s *Store[E]) Add(studyUID int64, e E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry[E]{studyUID: studyUID, value: e})
}

// Remove deletes every revision of the entity with the given uuid.
func (s *Store[E]) Remove(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, en := range s.entries {
		if en.value.EntryUUID() != uuid {
			kept = append(kept, en)
		}
	}
	s.entries = kept
}

// Search implements catalog.Store.
func (s *Store[E]) Search(_ context.Context, q catalog.Query, _ catalog.Projection, visibleTo string) (catalog.Result[E], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entry[E]
	for _, en := range s.entries {
		if q.StudyUID > 0 && en.studyUID != q.StudyUID {
			continue
		}
		if !s.filtersMatch(en.value, q) {
			continue
		}
		if q.Version > 0 && en.value.EntryVersion() != q.Version {
			continue
		}
		if visibleTo != "" && s.visible != nil && !s.visible(visibleTo, en.value) {
			continue
		}
		matched = append(matched, en)
	}

	if !q.Versioned() {
		matched = latestOnly(matched)
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i].value, matched[j].value
			if a.EntryUUID() == b.EntryUUID() {
				return a.EntryVersion() < b.EntryVersion()
			}
			return false
		})
	}

	out := catalog.Result[E]{MatchCount: len(matched)}
	for _, en := range matched {
		out.Entries = append(out.Entries, en.value)
	}
	return out, nil
}

func (s *Store[E]) filtersMatch(e E, q catalog.Query) bool {
	for field, want := range q.Filters {
		switch field {
		case catalog.FieldID:
			if !valueMatches(e.EntryID(), want) {
				return false
			}
		case catalog.FieldUUID:
			if !valueMatches(e.EntryUUID(), want) {
				return false
			}
		case catalog.FieldVersion, catalog.FieldStudyUID:
			// handled structurally by Search
		default:
			if s.match != nil && !s.match(e, field, want) {
				return false
			}
		}
	}
	return true
}

func valueMatches(have string, want any) bool {
	switch w := want.(type) {
	case string:
		return have == w
	case []string:
		for _, v := range w {
			if have == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// latestOnly keeps the highest version per uuid, preserving first-seen
// order of the logical entities.
func latestOnly[E catalog.Entry](in []entry[E]) []entry[E] {
	best := make(map[string]int)
	var order []string
	for i, en := range in {
		u := en.value.EntryUUID()
		if j, ok := best[u]; !ok {
			best[u] = i
			order = append(order, u)
		} else if en.value.EntryVersion() > in[j].value.EntryVersion() {
			best[u] = i
		}
	}
	out := make([]entry[E], 0, len(order))
	for _, u := range order {
		out = append(out, in[best[u]])
	}
	return out
}
