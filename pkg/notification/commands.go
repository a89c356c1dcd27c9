// Package notification exposes the service surface of the subscription
// system: the subscribe/unsubscribe commands and their handlers, the query
// facade over the read side, and the ingestor that feeds the event cache.
package notification

import (
	"github.com/google/uuid"

	"github.com/hmcts/cpp-context-notification/pkg/domain"
	"github.com/hmcts/cpp-context-notification/pkg/filter"
)

// Command routing keys.
const (
	CommandTypeSubscribe   = "notification.subscribe"
	CommandTypeUnsubscribe = "notification.unsubscribe"
)

// SubscribeCommand creates a subscription, or replaces its filter when one
// already exists for the id. The filter it carries is fully resolved; the
// current-user shorthand is rewritten before the command is dispatched.
type SubscribeCommand struct {
	SubscriptionID string `valid:"uuid,required"`
	UserID         string `valid:"uuid,required"`
	Filter         filter.Filter `valid:"-"`
}

// UnsubscribeCommand cancels a subscription. Cancelling an absent or
// already-cancelled subscription is a silent no-op.
type UnsubscribeCommand struct {
	SubscriptionID string `valid:"uuid,required"`
}

func newEnvelope(commandType string, command any, principalID string) *domain.CommandEnvelope {
	return &domain.CommandEnvelope{
		Command: command,
		Metadata: domain.CommandMetadata{
			CommandID:   uuid.NewString(),
			PrincipalID: principalID,
			Timestamp:   domain.Now(),
			Custom:      map[string]string{"command_type": commandType},
		},
	}
}
