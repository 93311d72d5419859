// Package postgres persists audit records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"catalog/internal/audit"
	"catalog/internal/catalog"
	"catalog/pkg/domain"
)

// Store implements audit.RecordStore on a PostgreSQL database. Structured
// sub-documents (params, attributes, status) are stored as JSONB so that
// records survive model additions without schema churn.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema returns the DDL for the audit_records table. Integration tests and
// the dev bootstrap apply it; production deployments own their migrations.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS audit_records (
			id              TEXT PRIMARY KEY,
			operation_id    TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			api_version     TEXT NOT NULL DEFAULT '',
			action          TEXT NOT NULL,
			resource        TEXT NOT NULL,
			entity_id       TEXT NOT NULL DEFAULT '',
			entity_uuid     TEXT NOT NULL DEFAULT '',
			study_id        TEXT NOT NULL DEFAULT '',
			study_uuid      TEXT NOT NULL DEFAULT '',
			params          JSONB NOT NULL DEFAULT '[]',
			status          JSONB NOT NULL DEFAULT '{}',
			timestamp       TIMESTAMPTZ NOT NULL,
			attributes      JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_audit_records_operation ON audit_records (operation_id);
		CREATE INDEX IF NOT EXISTS idx_audit_records_timestamp ON audit_records (timestamp DESC);
	`
}

const insertColumns = `
	id, operation_id, user_id, api_version, action, resource,
	entity_id, entity_uuid, study_id, study_uuid,
	params, status, timestamp, attributes
`

// InsertOne writes a single audit record. Duplicate record IDs are ignored so
// that retried writes stay idempotent.
func (s *Store) InsertOne(ctx context.Context, rec audit.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO audit_records (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, insertColumns)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// InsertMany writes a batch of records in one statement. The batch succeeds
// or fails as a whole; the trail decides what to do with a failed batch.
func (s *Store) InsertMany(ctx context.Context, recs []audit.Record) error {
	if len(recs) == 0 {
		return nil
	}

	var (
		placeholders []string
		args         []any
	)
	for i, rec := range recs {
		recArgs, err := recordArgs(rec)
		if err != nil {
			return err
		}
		base := i * 14
		ph := make([]string, 14)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, recArgs...)
	}

	query := fmt.Sprintf(`
		INSERT INTO audit_records (%s)
		VALUES %s
		ON CONFLICT (id) DO NOTHING
	`, insertColumns, strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit batch: %w", err)
	}
	return nil
}

// ByOperation returns every record of one operation, oldest first.
func (s *Store) ByOperation(ctx context.Context, operationID string) ([]audit.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_records
		WHERE operation_id = $1
		ORDER BY timestamp ASC
	`, insertColumns)

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Recent returns the limit most recent records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_records
		ORDER BY timestamp DESC
		LIMIT $1
	`, insertColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func recordArgs(rec audit.Record) ([]any, error) {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal audit params: %w", err)
	}
	status, err := json.Marshal(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("marshal audit status: %w", err)
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal audit attributes: %w", err)
	}

	return []any{
		rec.ID,
		rec.OperationID,
		rec.UserID,
		rec.APIVersion.String(),
		string(rec.Action),
		rec.Resource.String(),
		rec.ResourceID,
		rec.ResourceUUID,
		rec.StudyID,
		rec.StudyUUID,
		params,
		status,
		rec.Timestamp,
		attrs,
	}, nil
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record

	for rows.Next() {
		var (
			rec        audit.Record
			apiVersion string
			action     string
			resource   string
			params     []byte
			status     []byte
			attrs      []byte
		)

		err := rows.Scan(
			&rec.ID,
			&rec.OperationID,
			&rec.UserID,
			&apiVersion,
			&action,
			&resource,
			&rec.ResourceID,
			&rec.ResourceUUID,
			&rec.StudyID,
			&rec.StudyUUID,
			&params,
			&status,
			&rec.Timestamp,
			&attrs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		rec.APIVersion = domain.APIVersion(apiVersion)
		rec.Action = audit.Action(action)
		res, err := catalog.ParseResource(resource)
		if err != nil {
			return nil, err
		}
		rec.Resource = res

		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return nil, fmt.Errorf("unmarshal audit params: %w", err)
		}
		if err := json.Unmarshal(status, &rec.Status); err != nil {
			return nil, fmt.Errorf("unmarshal audit status: %w", err)
		}
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal audit attributes: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
