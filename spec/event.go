package spec

import "time"

// EventType identifies a billing lifecycle event
type EventType string

// Billing events published after the corresponding state was persisted
const (
	EventBillRequested       EventType = "bill.requested"
	EventPaymentMatched      EventType = "payment.matched"
	EventGraceStarted        EventType = "subscription.grace"
	EventSubscriptionExpired EventType = "subscription.expired"
)

// Event is published to the message broker
type Event struct {
	Type           EventType  `json:"type"`
	SubscriptionID uint       `json:"subscriptionId"`
	CustomerID     string     `json:"customerId"`
	When           time.Time  `json:"when"`
	Parameters     Parameters `json:"parameters,omitempty"`
}
