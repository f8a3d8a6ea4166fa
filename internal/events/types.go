// Package events provides the typed event bus that carries harvest progress
// to whatever transport the host exposes. Delivery is best-effort; durable
// state lives in the checkpoint, never in the event stream.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

// System-wide event types
const (
	// Harvest lifecycle events
	EventHarvestStarted   EventType = "harvest.started"
	EventHarvestLog       EventType = "harvest.log"
	EventHarvestProgress  EventType = "harvest.progress"
	EventHarvestChunk     EventType = "harvest.chunk"
	EventHarvestPaused    EventType = "harvest.paused"
	EventHarvestResumed   EventType = "harvest.resumed"
	EventHarvestShutdown  EventType = "harvest.shutdown"
	EventHarvestCompleted EventType = "harvest.completed"
	EventHarvestError     EventType = "harvest.error"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"

	// General events
	EventError   EventType = "error"
	EventWarning EventType = "warning"
	EventInfo    EventType = "info"
	EventDebug   EventType = "debug"
)

// EventPriority represents the priority level of an event
type EventPriority int

const (
	PriorityLow      EventPriority = 1
	PriorityNormal   EventPriority = 5
	PriorityHigh     EventPriority = 10
	PriorityCritical EventPriority = 20
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // system, harvest:id, etc.
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Priority  EventPriority          `json:"priority"`
	Tags      []string               `json:"tags"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter represents filters for event subscriptions
type EventFilter struct {
	Types    []EventType    `json:"types,omitempty"`
	Sources  []string       `json:"sources,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Priority *EventPriority `json:"priority,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Subscriber    string       `json:"subscriber"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	EventsBySource      map[string]int64 `json:"events_by_source"`
	RecentEvents        []Event          `json:"recent_events"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}

// EventBusConfig represents configuration for the event bus
type EventBusConfig struct {
	BufferSize      int `json:"buffer_size"`
	MaxRecentEvents int `json:"max_recent_events"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:      1000,
		MaxRecentEvents: 100,
	}
}
