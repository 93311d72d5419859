// Package postgres provides the durable entity store. Each resource kind
// gets one table partitioned by study, with the entity document held as
// JSONB next to the indexed identifier columns the resolver filters on.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"catalog/internal/catalog"
)

// Store implements catalog.Store for one resource kind. E is the concrete
// entity document; rows are decoded from the JSONB column.
type Store[E catalog.Entry] struct {
	db    *sql.DB
	table string
}

// New creates a store reading the table named after the resource, e.g.
// "entities_sample" for SAMPLE.
func New[E catalog.Entry](db *sql.DB, resource catalog.Resource) *Store[E] {
	return &Store[E]{
		db:    db,
		table: "entities_" + strings.ToLower(resource.String()),
	}
}

// Schema returns the DDL for one resource's entity table. acl_members holds
// the user ids allowed to see the entity; "*" marks it public.
func Schema(resource catalog.Resource) string {
	table := "entities_" + strings.ToLower(resource.String())
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			uuid        TEXT NOT NULL,
			id          TEXT NOT NULL,
			version     INTEGER NOT NULL DEFAULT 1,
			study_uid   BIGINT NOT NULL,
			acl_members TEXT[] NOT NULL DEFAULT '{}',
			doc         JSONB NOT NULL,
			PRIMARY KEY (uuid, version)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_study_id ON %[1]s (study_uid, id);
	`, table)
}

// Insert writes one entity revision.
func (s *Store[E]) Insert(ctx context.Context, studyUID int64, e E, aclMembers []string) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (uuid, id, version, study_uid, acl_members, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.table)

	version := e.EntryVersion()
	if version <= 0 {
		version = 1
	}
	_, err = s.db.ExecContext(ctx, query,
		e.EntryUUID(), e.EntryID(), version, studyUID, pq.Array(aclMembers), doc)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// Search implements catalog.Store. The projection is advisory: rows carry
// the full document, which trivially retains every kept field.
func (s *Store[E]) Search(ctx context.Context, q catalog.Query, _ catalog.Projection, visibleTo string) (catalog.Result[E], error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.StudyUID > 0 {
		where = append(where, "study_uid = "+arg(q.StudyUID))
	}
	if q.Version > 0 {
		where = append(where, "version = "+arg(q.Version))
	}
	if visibleTo != "" {
		p := arg(visibleTo)
		where = append(where, fmt.Sprintf("(%s = ANY(acl_members) OR '*' = ANY(acl_members))", p))
	}

	for field, value := range q.Filters {
		column, direct := identifierColumn(field)
		var expr string
		switch {
		case direct:
			expr = column
		default:
			expr = fmt.Sprintf("doc->>%s", arg(field))
		}
		if list, ok := value.([]string); ok {
			where = append(where, fmt.Sprintf("%s = ANY(%s)", expr, arg(pq.Array(list))))
		} else {
			where = append(where, fmt.Sprintf("%s = %s", expr, arg(fmt.Sprint(value))))
		}
	}

	var clause string
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	// Latest revision per uuid unless the query addresses versions itself.
	var query string
	if q.Versioned() {
		query = fmt.Sprintf(`
			SELECT doc FROM %s %s
			ORDER BY uuid, version ASC
		`, s.table, clause)
	} else {
		query = fmt.Sprintf(`
			SELECT DISTINCT ON (uuid) doc FROM %s %s
			ORDER BY uuid, version DESC
		`, s.table, clause)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return catalog.Result[E]{}, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var result catalog.Result[E]
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return catalog.Result[E]{}, fmt.Errorf("scan entity: %w", err)
		}
		e := new(E)
		if err := json.Unmarshal(doc, e); err != nil {
			return catalog.Result[E]{}, fmt.Errorf("unmarshal entity: %w", err)
		}
		result.Entries = append(result.Entries, *e)
	}
	if err := rows.Err(); err != nil {
		return catalog.Result[E]{}, fmt.Errorf("iterate entities: %w", err)
	}

	result.MatchCount = len(result.Entries)
	return result, nil
}

// Remove deletes every revision of one entity.
func (s *Store[E]) Remove(ctx context.Context, uuid string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE uuid = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, uuid); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func identifierColumn(field string) (string, bool) {
	switch field {
	case catalog.FieldID:
		return "id", true
	case catalog.FieldUUID:
		return "uuid", true
	case catalog.FieldVersion:
		return "version", true
	case catalog.FieldStudyUID:
		return "study_uid", true
	}
	return "", false
}
