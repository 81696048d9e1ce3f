// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"mapdna/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Element Events
// =============================================================================

// ElementChange says what happened to an element.
type ElementChange string

const (
	ElementSaved   ElementChange = "saved"
	ElementDeleted ElementChange = "deleted"
)

// ElementsChanged is published when the content store reports edited
// elements. Cached copies of them are stale.
type ElementsChanged struct {
	BaseEvent
	IDs    []int64       `json:"ids"`
	Change ElementChange `json:"change"`
}

func (e ElementsChanged) EventName() string { return "elements.changed" }
