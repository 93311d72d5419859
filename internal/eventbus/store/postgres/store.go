// Package postgres persists event lifecycle rows in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"catalog/internal/eventbus"
	"catalog/pkg/platform/sentinel"
)

// Store implements eventbus.RecordStore on a PostgreSQL database. The
// subscriber status list lives in a JSONB column; status updates rewrite it
// in place, which is fine at the per-event subscriber counts the bus sees.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL event store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema returns the DDL for the events table.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS events (
			uuid              TEXT PRIMARY KEY,
			id                TEXT NOT NULL DEFAULT '',
			event_id          TEXT NOT NULL,
			organization_id   TEXT NOT NULL,
			user_id           TEXT NOT NULL,
			study_fqn         TEXT NOT NULL,
			study_uuid        TEXT NOT NULL DEFAULT '',
			result            JSONB,
			creation_date     TEXT NOT NULL,
			modification_date TEXT NOT NULL,
			subscribers       JSONB NOT NULL DEFAULT '[]',
			successful        BOOLEAN NOT NULL DEFAULT FALSE,
			finished          BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_events_event_id ON events (event_id);
	`
}

// InsertEvent writes the event row at dispatch start. The caller token is
// deliberately not persisted.
func (s *Store) InsertEvent(ctx context.Context, ev eventbus.Event) error {
	result, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal event result: %w", err)
	}

	query := `
		INSERT INTO events (
			uuid, id, event_id, organization_id, user_id,
			study_fqn, study_uuid, result,
			creation_date, modification_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.UUID,
		ev.ID,
		ev.EventID,
		ev.OrganizationID,
		ev.UserID,
		ev.StudyFqn,
		ev.StudyUUID,
		result,
		ev.CreationDate,
		ev.ModificationDate,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateSubscriberStatus appends or replaces one subscriber's outcome on the
// event's status list.
func (s *Store) UpdateSubscriberStatus(ctx context.Context, eventUUID string, status eventbus.SubscriberStatus) error {
	entry, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal subscriber status: %w", err)
	}

	// Drop any earlier entry for the same ref, then append the new one.
	query := `
		UPDATE events
		SET subscribers = (
			SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
			FROM jsonb_array_elements(subscribers) AS elem
			WHERE elem->>'Ref' <> $2
		) || jsonb_build_array($3::jsonb)
		WHERE uuid = $1
	`
	res, err := s.db.ExecContext(ctx, query, eventUUID, status.Ref, entry)
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}
	return requireRow(res, eventUUID)
}

// MarkFinished stamps the event's terminal state.
func (s *Store) MarkFinished(ctx context.Context, eventUUID string, successful bool) error {
	query := `
		UPDATE events
		SET successful = $2, finished = TRUE
		WHERE uuid = $1
	`
	res, err := s.db.ExecContext(ctx, query, eventUUID, successful)
	if err != nil {
		return fmt.Errorf("mark event finished: %w", err)
	}
	return requireRow(res, eventUUID)
}

// ByUUID loads one event row.
func (s *Store) ByUUID(ctx context.Context, eventUUID string) (eventbus.Event, error) {
	query := `
		SELECT uuid, id, event_id, organization_id, user_id,
			   study_fqn, study_uuid, result,
			   creation_date, modification_date,
			   subscribers, successful, finished
		FROM events
		WHERE uuid = $1
	`

	var (
		ev          eventbus.Event
		result      []byte
		subscribers []byte
	)
	err := s.db.QueryRowContext(ctx, query, eventUUID).Scan(
		&ev.UUID,
		&ev.ID,
		&ev.EventID,
		&ev.OrganizationID,
		&ev.UserID,
		&ev.StudyFqn,
		&ev.StudyUUID,
		&result,
		&ev.CreationDate,
		&ev.ModificationDate,
		&subscribers,
		&ev.Successful,
		&ev.Finished,
	)
	if err == sql.ErrNoRows {
		return eventbus.Event{}, fmt.Errorf("event %s: %w", eventUUID, sentinel.ErrNotFound)
	}
	if err != nil {
		return eventbus.Event{}, fmt.Errorf("query event: %w", err)
	}

	if len(result) > 0 {
		if err := json.Unmarshal(result, &ev.Result); err != nil {
			return eventbus.Event{}, fmt.Errorf("unmarshal event result: %w", err)
		}
	}
	if err := json.Unmarshal(subscribers, &ev.Subscribers); err != nil {
		return eventbus.Event{}, fmt.Errorf("unmarshal subscriber statuses: %w", err)
	}
	return ev, nil
}

func requireRow(res sql.Result, eventUUID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", eventUUID, sentinel.ErrNotFound)
	}
	return nil
}
