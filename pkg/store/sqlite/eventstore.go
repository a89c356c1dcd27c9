package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// EventStore is a SQLite-backed implementation of store.EventStore. It
// provides ACID guarantees for event persistence with no CGo dependencies.
type EventStore struct {
	db *sql.DB
	mu sync.RWMutex
}

type eventStoreConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultEventStoreConfig() eventStoreConfig {
	return eventStoreConfig{
		dsn:          "notification.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// EventStoreOption configures an EventStore.
type EventStoreOption func(*eventStoreConfig)

// WithDSN sets the data source name (file path or ":memory:" for in-memory).
func WithDSN(dsn string) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase uses an in-memory database. Intended for tests.
func WithMemoryDatabase() EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxOpenConns = n
	}
}

// WithWALMode enables write-ahead logging for better concurrency. Not
// available for :memory: databases.
func WithWALMode(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.walMode = enabled
	}
}

// NewEventStore opens (and migrates) a SQLite event store.
func NewEventStore(opts ...EventStoreOption) (*EventStore, error) {
	config := defaultEventStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A :memory: database exists per connection, so the pool must be
	// pinned to a single connection.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &EventStore{db: db}

	if config.walMode && config.dsn != ":memory:" {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
			PRAGMA foreign_keys = ON;
		`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if config.autoMigrate {
		if err := runMigrations(db, migrationsFS, "migrations", "schema_migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return store, nil
}

// DB exposes the underlying database handle so view stores can share a
// single :memory: database in tests and a single file in deployments.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// AppendEvents appends events to an aggregate's stream atomically, checking
// optimistic concurrency against expectedVersion.
func (s *EventStore) AppendEvents(aggregateID string, expectedVersion int64, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check current version: %w", err)
	}

	if currentVersion != expectedVersion {
		return domain.ErrConcurrencyConflict
	}

	for _, event := range events {
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, version, timestamp, data, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			event.Version,
			event.Timestamp.UnixMilli(),
			event.Data,
			string(metadataJSON),
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadEvents loads all events for an aggregate with version > afterVersion.
func (s *EventStore) LoadEvents(aggregateID string, afterVersion int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, aggregate_id, aggregate_type, event_type, version, timestamp, data, metadata
		FROM events
		WHERE aggregate_id = ? AND version > ?
		ORDER BY version ASC
	`, aggregateID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, _, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// LoadAllEvents loads events across all aggregates in global append order.
func (s *EventStore) LoadAllEvents(fromPosition int64, limit int) ([]*domain.EventEnvelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, aggregate_id, aggregate_type, event_type, version, timestamp, data, metadata, position
		FROM events
		WHERE position > ?
		ORDER BY position ASC
		LIMIT ?
	`, fromPosition, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all events: %w", err)
	}
	defer rows.Close()

	var envelopes []*domain.EventEnvelope
	for rows.Next() {
		var (
			event        domain.Event
			timestamp    int64
			metadataJSON string
			position     int64
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&event.Version,
			&timestamp,
			&event.Data,
			&metadataJSON,
			&position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Timestamp = time.UnixMilli(timestamp).UTC()
		if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
		envelopes = append(envelopes, &domain.EventEnvelope{Event: event, Position: position})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return envelopes, nil
}

// GetAggregateVersion returns the current version of an aggregate, or 0 if
// the aggregate doesn't exist.
func (s *EventStore) GetAggregateVersion(aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get aggregate version: %w", err)
	}

	return version, nil
}

// Close closes the event store and releases resources.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func scanEvent(rows *sql.Rows) (*domain.Event, int64, error) {
	var (
		event        domain.Event
		timestamp    int64
		metadataJSON string
	)
	if err := rows.Scan(
		&event.ID,
		&event.AggregateID,
		&event.AggregateType,
		&event.EventType,
		&event.Version,
		&timestamp,
		&event.Data,
		&metadataJSON,
	); err != nil {
		return nil, 0, fmt.Errorf("failed to scan event: %w", err)
	}
	event.Timestamp = time.UnixMilli(timestamp).UTC()
	if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal event metadata: %w", err)
	}
	return &event, timestamp, nil
}
