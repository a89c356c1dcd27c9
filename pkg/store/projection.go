package store

import (
	"context"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// Projection builds a read model from events. Projections consume events
// from the event bus in real time and can be rebuilt from the event store.
type Projection interface {
	// Name returns the unique name of this projection.
	Name() string

	// Handle processes an event and updates the read model.
	Handle(ctx context.Context, event *domain.EventEnvelope) error

	// Reset resets the projection state (for rebuilding).
	Reset(ctx context.Context) error
}

// ProjectionCheckpoint tracks the progress of a projection.
type ProjectionCheckpoint struct {
	ProjectionName string
	Position       int64
	LastEventID    string
	UpdatedAt      time.Time
}

// CheckpointStore persists projection checkpoints.
type CheckpointStore interface {
	// Save saves a checkpoint.
	Save(checkpoint *ProjectionCheckpoint) error

	// Load loads a checkpoint for a projection.
	Load(projectionName string) (*ProjectionCheckpoint, error)

	// Delete deletes a checkpoint (for rebuilding).
	Delete(projectionName string) error
}
