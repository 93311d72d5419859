package domain

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the entity family a catalog uuid was generated for.
// The kind is folded into the uuid itself so operational tooling can tell
// what a bare uuid refers to without a store lookup.
type Kind byte

const (
	KindAudit Kind = iota
	KindEvent
	KindUser
	KindProject
	KindStudy
	KindSample
	KindIndividual
	KindFile
	KindJob
	KindCohort
	KindFamily
	KindPanel
)

var kindNames = map[Kind]string{
	KindAudit:      "audit",
	KindEvent:      "event",
	KindUser:       "user",
	KindProject:    "project",
	KindStudy:      "study",
	KindSample:     "sample",
	KindIndividual: "individual",
	KindFile:       "file",
	KindJob:        "job",
	KindCohort:     "cohort",
	KindFamily:     "family",
	KindPanel:      "panel",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// NewUUID generates a catalog uuid for the given entity kind.
//
// Layout: the first six bytes carry the creation time in unix milliseconds,
// the version nibble is the RFC 4122 marker with the kind in its low bits,
// and the remainder is random. The result parses as a standard uuid string,
// which is the property the resolver's classifier relies on.
func NewUUID(kind Kind) string {
	u := uuid.New()

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixMilli()))
	copy(u[0:6], ts[2:8])

	u[6] = 0x40 | byte(kind)&0x0f
	u[8] = 0x80 | u[8]&0x3f

	return u.String()
}

// KindOf extracts the entity kind embedded in a catalog uuid.
// Returns false for strings that are not catalog uuids.
func KindOf(s string) (Kind, bool) {
	u, err := uuid.Parse(s)
	if err != nil {
		return 0, false
	}
	k := Kind(u[6] & 0x0f)
	_, known := kindNames[k]
	return k, known
}

// IsCatalogUUID reports whether s is structurally a catalog uuid.
//
// The check is purely structural (canonical 36-char form, version and
// variant markers in place). It deliberately never touches the store: the
// resolver uses it to decide which identifier column a batch addresses, and
// that decision must be cheap and deterministic.
func IsCatalogUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}
