// Package events carries change notifications between the content store
// webhook and the caches that depend on it.
package events

import (
	"context"
	"time"
)

// Event is a named notification. Subscribers are keyed by EventName.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent stamps an event with the time it was raised.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt implements Event.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans events out to the handlers subscribed to their name.
type Bus interface {
	// Publish returns immediately; handler errors are only logged.
	Publish(ctx context.Context, event Event)
	// PublishSync returns once every handler has finished, with the first
	// handler error.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
