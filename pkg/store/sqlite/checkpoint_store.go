package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/store"
)

// CheckpointStore persists projection checkpoints in the same SQLite
// database as the event store.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore creates a checkpoint store over an already-migrated
// database handle (see EventStore.DB).
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save upserts a checkpoint.
func (s *CheckpointStore) Save(checkpoint *store.ProjectionCheckpoint) error {
	_, err := s.db.Exec(`
		INSERT INTO projection_checkpoints (projection_name, position, last_event_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (projection_name) DO UPDATE SET
			position = excluded.position,
			last_event_id = excluded.last_event_id,
			updated_at = excluded.updated_at
	`,
		checkpoint.ProjectionName,
		checkpoint.Position,
		checkpoint.LastEventID,
		checkpoint.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load loads a checkpoint for a projection. Returns sql.ErrNoRows wrapped
// when no checkpoint exists yet.
func (s *CheckpointStore) Load(projectionName string) (*store.ProjectionCheckpoint, error) {
	var (
		checkpoint store.ProjectionCheckpoint
		updatedAt  int64
	)
	err := s.db.QueryRow(`
		SELECT projection_name, position, last_event_id, updated_at
		FROM projection_checkpoints
		WHERE projection_name = ?
	`, projectionName).Scan(
		&checkpoint.ProjectionName,
		&checkpoint.Position,
		&checkpoint.LastEventID,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint for %s: %w", projectionName, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	checkpoint.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &checkpoint, nil
}

// Delete deletes a checkpoint.
func (s *CheckpointStore) Delete(projectionName string) error {
	if _, err := s.db.Exec(
		`DELETE FROM projection_checkpoints WHERE projection_name = ?`,
		projectionName,
	); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
