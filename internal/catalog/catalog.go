// Package catalog defines the shared vocabulary of the metadata layer:
// the entry capability every resolvable entity satisfies, the closed
// resource enum, and the query/projection types the stores consume.
package catalog

import (
	dErrors "catalog/pkg/domain-errors"
)

// Resource enumerates the entity families managed by the catalog.
// The set is closed: audit records and event ids are built from it, so an
// unknown resource is a programming error, not a runtime input.
type Resource string

const (
	ResourceUser       Resource = "USER"
	ResourceProject    Resource = "PROJECT"
	ResourceStudy      Resource = "STUDY"
	ResourceSample     Resource = "SAMPLE"
	ResourceIndividual Resource = "INDIVIDUAL"
	ResourceFile       Resource = "FILE"
	ResourceJob        Resource = "JOB"
	ResourceCohort     Resource = "COHORT"
	ResourceFamily     Resource = "FAMILY"
	ResourcePanel      Resource = "PANEL"
)

var validResources = map[Resource]bool{
	ResourceUser:       true,
	ResourceProject:    true,
	ResourceStudy:      true,
	ResourceSample:     true,
	ResourceIndividual: true,
	ResourceFile:       true,
	ResourceJob:        true,
	ResourceCohort:     true,
	ResourceFamily:     true,
	ResourcePanel:      true,
}

// ParseResource constructs a Resource from external input.
func ParseResource(s string) (Resource, error) {
	r := Resource(s)
	if !validResources[r] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown resource type: %s", s)
	}
	return r, nil
}

func (r Resource) String() string {
	return string(r)
}

// Entry is the capability required of every resolvable catalog entity:
// a mutable, study-scoped mnemonic id, an immutable opaque uuid, and a
// version for versioned kinds (0 when the kind is unversioned).
type Entry interface {
	EntryID() string
	EntryUUID() string
	EntryVersion() int
}
