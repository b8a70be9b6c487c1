package bus

import "time"

// EventBus is an in-process pub/sub bus partitioned into topics.
//
// Handlers subscribe to an event type within a topic. PublishToTopic calls
// them synchronously in the caller goroutine, in subscription order, and
// joins their errors.
//
// All methods are safe for concurrent use. Handlers may subscribe or cancel
// from inside a delivery; the change applies to the next publish.
type EventBus interface {
	// CreateTopic declares a topic. Repeat declarations are idempotent.
	CreateTopic(name string) error
	SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error)
	PublishToTopic(topic string, event Event) error
}

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// EventHandler is invoked per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler bound to an event type.
type Subscription interface {
	ID() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
