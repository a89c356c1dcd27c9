package view

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/filter"
)

// CachedEvent is one ingested public event held in the cache for matching.
// The correlation fields mirror the metadata public events carry; absent
// ones are stored as empty strings and never match an equality predicate.
type CachedEvent struct {
	ID                  string
	UserID              string
	SessionID           string
	ClientCorrelationID string
	StreamID            string
	EventJSON           string
	Created             time.Time
	Name                string
}

// EventCacheStore holds ingested public events in SQLite. Rows live until
// the cache cleaner removes them; queries are driven by compiled filter
// predicates with all values bound as parameters.
type EventCacheStore struct {
	db *sql.DB
}

// NewEventCacheStore creates the store and its schema.
func NewEventCacheStore(db *sql.DB) (*EventCacheStore, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS event_cache (
			id                    TEXT PRIMARY KEY,
			user_id               TEXT NOT NULL DEFAULT '',
			session_id            TEXT NOT NULL DEFAULT '',
			client_correlation_id TEXT NOT NULL DEFAULT '',
			stream_id             TEXT NOT NULL DEFAULT '',
			event_json            TEXT NOT NULL,
			created               INTEGER NOT NULL,
			name                  TEXT NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create event_cache table: %w", err)
	}
	if _, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_event_cache_created ON event_cache (created)`,
	); err != nil {
		return nil, fmt.Errorf("failed to create event_cache index: %w", err)
	}
	return &EventCacheStore{db: db}, nil
}

// Save inserts a cached event. Re-delivery of the same event id is a
// silent no-op.
func (s *EventCacheStore) Save(ctx context.Context, event CachedEvent) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO event_cache
			(id, user_id, session_id, client_correlation_id, stream_id, event_json, created, name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`,
		event.ID,
		event.UserID,
		event.SessionID,
		event.ClientCorrelationID,
		event.StreamID,
		event.EventJSON,
		event.Created.UnixMilli(),
		event.Name,
	); err != nil {
		return fmt.Errorf("failed to save cached event: %w", err)
	}
	return nil
}

// QueryByFilter returns the cached events matching a compiled predicate,
// newest first. When clientCorrelationID is non-empty it is conjoined with
// the predicate as an additional equality constraint.
func (s *EventCacheStore) QueryByFilter(ctx context.Context, predicate filter.Predicate, clientCorrelationID string) ([]CachedEvent, error) {
	query := `
		SELECT id, user_id, session_id, client_correlation_id, stream_id, event_json, created, name
		FROM event_cache
		WHERE ` + predicate.Clause
	args := append([]any{}, predicate.Args...)

	if clientCorrelationID != "" {
		query += ` AND client_correlation_id = ?`
		args = append(args, clientCorrelationID)
	}
	query += ` ORDER BY created DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event cache: %w", err)
	}
	defer rows.Close()

	var events []CachedEvent
	for rows.Next() {
		var (
			event   CachedEvent
			created int64
		)
		if err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.SessionID,
			&event.ClientCorrelationID,
			&event.StreamID,
			&event.EventJSON,
			&created,
			&event.Name,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cached event: %w", err)
		}
		event.Created = time.UnixMilli(created).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event cache: %w", err)
	}

	return events, nil
}

// DeleteCreatedBefore removes cached events older than the cutoff, in
// batches, and returns the total number of rows deleted.
func (s *EventCacheStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM event_cache
			WHERE id IN (
				SELECT id FROM event_cache WHERE created < ? LIMIT ?
			)
		`, cutoff.UnixMilli(), batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete cached events: %w", err)
		}

		deleted, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read deleted row count: %w", err)
		}
		total += deleted

		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}
