package subscription

import (
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/filter"
)

// AggregateType is the stream type name for subscription aggregates.
const AggregateType = "subscription"

// Event type names, as they appear in the event log and on the bus.
const (
	EventTypeSubscribed    = "notification.subscribed"
	EventTypeFilterUpdated = "notification.filter-updated"
	EventTypeUnsubscribed  = "notification.unsubscribed"
)

// Subscribed records the creation of a subscription. The filter it carries
// is always fully resolved: a current-user shorthand never reaches the log.
type Subscribed struct {
	SubscriptionID string        `json:"subscriptionId"`
	OwnerID        string        `json:"ownerId"`
	Filter         filter.Filter `json:"filter"`
	Created        time.Time     `json:"created"`
}

// FilterUpdated records a replacement of the subscription's filter.
type FilterUpdated struct {
	SubscriptionID string        `json:"subscriptionId"`
	Filter         filter.Filter `json:"filter"`
	Modified       time.Time     `json:"modified"`
}

// Unsubscribed records the cancellation of a subscription.
type Unsubscribed struct {
	SubscriptionID string `json:"subscriptionId"`
}
