package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/idgen"
	"github.com/hmcts/cpp-context-notification/pkg/messaging"
	"github.com/hmcts/cpp-context-notification/pkg/view"
)

// PublicEvent is an inbound domain event from another context, as presented
// to the ingestor. Correlation attributes are optional; absent ones never
// match an equality filter.
type PublicEvent struct {
	ID                  string
	Name                string
	UserID              string
	SessionID           string
	ClientCorrelationID string
	StreamID            string
	Created             time.Time
	Payload             json.RawMessage
}

// Ingestor writes inbound public events into the event cache, where
// compiled subscription filters are matched against them.
type Ingestor struct {
	cache  *view.EventCacheStore
	logger *slog.Logger
}

// NewIngestor creates an ingestor over the given cache.
func NewIngestor(cache *view.EventCacheStore, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{cache: cache, logger: logger}
}

// Ingest caches a single public event. Missing ids and timestamps are
// filled in; a re-delivered id is a silent no-op.
func (i *Ingestor) Ingest(ctx context.Context, event PublicEvent) error {
	if event.ID == "" {
		event.ID = idgen.MustGenerateSortableID()
	}
	if event.Created.IsZero() {
		event.Created = domain.Now()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	return i.cache.Save(ctx, view.CachedEvent{
		ID:                  event.ID,
		UserID:              event.UserID,
		SessionID:           event.SessionID,
		ClientCorrelationID: event.ClientCorrelationID,
		StreamID:            event.StreamID,
		EventJSON:           string(payload),
		Created:             event.Created,
		Name:                event.Name,
	})
}

// EventHandler adapts the ingestor to an event bus subscription. Failures
// are logged and returned so the bus can redeliver.
func (i *Ingestor) EventHandler(ctx context.Context) messaging.EventHandler {
	return func(envelope *domain.EventEnvelope) error {
		event := PublicEvent{
			ID:                  envelope.ID,
			Name:                envelope.EventType,
			UserID:              envelope.Metadata.PrincipalID,
			SessionID:           envelope.Metadata.Custom["session_id"],
			ClientCorrelationID: envelope.Metadata.Custom["client_correlation_id"],
			StreamID:            envelope.AggregateID,
			Created:             envelope.Timestamp,
			Payload:             envelope.Data,
		}

		if err := i.Ingest(ctx, event); err != nil {
			i.logger.Error("failed to ingest public event",
				"event_id", envelope.ID,
				"event_name", envelope.EventType,
				"error", err,
			)
			return err
		}
		return nil
	}
}
