package eventsourcing

import (
	"context"
	"fmt"
	"sync"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
	"github.com/hmcts/cpp-context-notification/pkg/store"
)

// ProjectionManager coordinates running projections: the event bus feeds
// them in real time, the event store serves rebuilds.
type ProjectionManager struct {
	projections     map[string]store.Projection
	checkpointStore store.CheckpointStore
	eventStore      store.EventStore
	eventBus        messaging.EventBus
	mu              sync.Mutex
	running         map[string]messaging.Subscription
}

// NewProjectionManager creates a projection manager.
func NewProjectionManager(checkpointStore store.CheckpointStore, eventStore store.EventStore, eventBus messaging.EventBus) *ProjectionManager {
	return &ProjectionManager{
		projections:     make(map[string]store.Projection),
		checkpointStore: checkpointStore,
		eventStore:      eventStore,
		eventBus:        eventBus,
		running:         make(map[string]messaging.Subscription),
	}
}

// Register registers a projection with the manager.
func (m *ProjectionManager) Register(projection store.Projection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.projections[projection.Name()] = projection
}

// Start subscribes a projection to the event bus.
func (m *ProjectionManager) Start(ctx context.Context, projectionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	projection, exists := m.projections[projectionName]
	if !exists {
		return fmt.Errorf("projection %s not found", projectionName)
	}
	if _, running := m.running[projectionName]; running {
		return fmt.Errorf("projection %s already running", projectionName)
	}

	subscription, err := m.eventBus.Subscribe(messaging.EventFilter{}, func(event *domain.EventEnvelope) error {
		if err := projection.Handle(ctx, event); err != nil {
			return fmt.Errorf("projection %s failed to handle event: %w", projectionName, err)
		}

		if err := m.checkpointStore.Save(&store.ProjectionCheckpoint{
			ProjectionName: projectionName,
			Position:       event.Position,
			LastEventID:    event.ID,
			UpdatedAt:      domain.Now(),
		}); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	m.running[projectionName] = subscription
	return nil
}

// Stop stops a running projection.
func (m *ProjectionManager) Stop(projectionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscription, running := m.running[projectionName]
	if !running {
		return fmt.Errorf("projection %s not running", projectionName)
	}

	delete(m.running, projectionName)
	return subscription.Unsubscribe()
}

// StopAll stops all running projections.
func (m *ProjectionManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, subscription := range m.running {
		subscription.Unsubscribe()
		delete(m.running, name)
	}
}

// Rebuild resets a projection and replays the whole event log into it from
// the event store in batches.
func (m *ProjectionManager) Rebuild(ctx context.Context, projectionName string) error {
	m.mu.Lock()
	projection, exists := m.projections[projectionName]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("projection %s not found", projectionName)
	}
	if subscription, running := m.running[projectionName]; running {
		subscription.Unsubscribe()
		delete(m.running, projectionName)
	}
	m.mu.Unlock()

	if err := projection.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset projection: %w", err)
	}
	if err := m.checkpointStore.Delete(projectionName); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	const batchSize = 1000
	position := int64(0)

	for {
		envelopes, err := m.eventStore.LoadAllEvents(position, batchSize)
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}
		if len(envelopes) == 0 {
			break
		}

		for _, envelope := range envelopes {
			if err := projection.Handle(ctx, envelope); err != nil {
				return fmt.Errorf("failed to handle event during rebuild: %w", err)
			}
			position = envelope.Position
		}

		if err := m.checkpointStore.Save(&store.ProjectionCheckpoint{
			ProjectionName: projectionName,
			Position:       position,
			LastEventID:    envelopes[len(envelopes)-1].ID,
			UpdatedAt:      domain.Now(),
		}); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		if len(envelopes) < batchSize {
			break
		}
	}

	return nil
}
