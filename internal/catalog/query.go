package catalog

import "context"

// Identifier field names understood by every entity store.
const (
	FieldID       = "id"
	FieldUUID     = "uuid"
	FieldVersion  = "version"
	FieldStudyUID = "studyUid"
)

// Query describes a filtered entity fetch. A zero Query matches everything
// in scope. Filters is a flat field -> value map; a []string value means
// set membership, anything else means equality.
type Query struct {
	StudyUID    int64 // > 0 narrows to one study; <= 0 means global scope
	Filters     map[string]any
	Version     int  // > 0 selects one specific version
	AllVersions bool // return every revision, ascending
}

// Clone returns a deep copy so callers can branch a query without aliasing
// the filter map.
func (q Query) Clone() Query {
	cp := q
	cp.Filters = make(map[string]any, len(q.Filters))
	for k, v := range q.Filters {
		cp.Filters[k] = v
	}
	return cp
}

// Set assigns a filter, allocating the map on first use.
func (q *Query) Set(field string, value any) {
	if q.Filters == nil {
		q.Filters = make(map[string]any)
	}
	q.Filters[field] = value
}

// Versioned reports whether the query addresses specific revisions rather
// than latest-only.
func (q Query) Versioned() bool {
	return q.AllVersions || q.Version > 0
}

// Projection selects which entity fields a fetch materialises. Empty
// Include means all fields. Exclude is applied after Include.
type Projection struct {
	Include []string
	Exclude []string
}

// Keep returns a projection guaranteed to retain field: it is appended to a
// non-empty include list and removed from the exclude list. The resolver
// relies on this so the identifier it matches on survives caller
// projections.
func (p Projection) Keep(field string) Projection {
	cp := Projection{
		Include: append([]string(nil), p.Include...),
		Exclude: make([]string, 0, len(p.Exclude)),
	}
	if len(cp.Include) > 0 {
		found := false
		for _, f := range cp.Include {
			if f == field {
				found = true
				break
			}
		}
		if !found {
			cp.Include = append(cp.Include, field)
		}
	}
	for _, f := range p.Exclude {
		if f != field {
			cp.Exclude = append(cp.Exclude, f)
		}
	}
	return cp
}

// Result is the outcome of a store fetch. MatchCount is the number of
// entities matching the filter regardless of pagination.
type Result[E Entry] struct {
	Entries    []E
	MatchCount int
}

// Store is the filtered, paginated query surface the resolver reads
// through. visibleTo scopes results to entities the named user may see;
// the empty string disables the visibility predicate entirely (used only
// by the resolver's disambiguation pass).
type Store[E Entry] interface {
	Search(ctx context.Context, q Query, proj Projection, visibleTo string) (Result[E], error)
}
