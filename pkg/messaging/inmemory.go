package messaging

import (
	"fmt"
	"sync"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
)

// InMemoryEventBus delivers events synchronously to subscribers in the
// publishing goroutine. Suited to tests and single-process deployments
// where the projector must observe a write before the publish returns.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	subs     map[int]*inMemorySubscription
	nextID   int
	position int64
	closed   bool
}

type inMemorySubscription struct {
	id      int
	bus     *InMemoryEventBus
	filter  EventFilter
	handler EventHandler
}

// NewInMemoryEventBus creates a synchronous in-process event bus.
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{subs: make(map[int]*inMemorySubscription)}
}

// Publish delivers each event to every matching subscriber in order. The
// first handler error is returned after all subscribers have been offered
// the event.
func (b *InMemoryEventBus) Publish(events []*domain.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	subs := make([]*inMemorySubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	positions := make([]int64, len(events))
	for i := range events {
		b.position++
		positions[i] = b.position
	}
	b.mu.Unlock()

	var firstErr error
	for i, event := range events {
		envelope := &domain.EventEnvelope{Event: *event, Position: positions[i]}
		for _, sub := range subs {
			if !sub.filter.Matches(event) {
				continue
			}
			if err := sub.handler(envelope); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("handler failed for event %s: %w", event.ID, err)
			}
		}
	}

	return firstErr
}

// Subscribe registers a handler for events matching the filter.
func (b *InMemoryEventBus) Subscribe(filter EventFilter, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	b.nextID++
	sub := &inMemorySubscription{
		id:      b.nextID,
		bus:     b,
		filter:  filter,
		handler: handler,
	}
	b.subs[sub.id] = sub

	return sub, nil
}

// Close removes all subscriptions and rejects further publishes.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[int]*inMemorySubscription)
	return nil
}

// Unsubscribe stops receiving events.
func (s *inMemorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)
	return nil
}
