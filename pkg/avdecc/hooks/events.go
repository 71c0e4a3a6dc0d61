// Package hooks lets a controller deployment react to entity-lifecycle
// and connection-management events without recompiling: register a
// Hook per EventType and it fires (shell script, webhook, structured
// stdio line) whenever the controller observes that event.
package hooks

import "time"

// EventType identifies one kind of controller-observable occurrence.
type EventType string

const (
	// Discovery events (spec §4.D).
	EventEntityOnline  EventType = "entity_online"
	EventEntityOffline EventType = "entity_offline"

	// Enumeration events (spec §4.I).
	EventEnumerationComplete EventType = "enumeration_complete"
	EventEnumerationFailed   EventType = "enumeration_failed"

	// Ownership events (spec §4.G).
	EventEntityAcquired EventType = "entity_acquired"
	EventEntityReleased EventType = "entity_released"
	EventEntityLocked   EventType = "entity_locked"
	EventEntityUnlocked EventType = "entity_unlocked"

	// Connection-management events (spec §4.F), observed either as a
	// result of this controller's own connect/disconnect or sniffed from
	// another controller's traffic on the bus.
	EventStreamConnected    EventType = "stream_connected"
	EventStreamDisconnected EventType = "stream_disconnected"
)

// Event is the payload delivered to every Hook registered for its Type.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	EntityID  string                 `json:"entity_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithEntityID sets the entity the event concerns, formatted the way
// protocol.EntityID.String() renders it (0x-prefixed hex EUI-64).
func (e *Event) WithEntityID(entityID string) *Event {
	e.EntityID = entityID
	return e
}

// WithData attaches one additional field to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String renders a compact "type:entityID" label for logging.
func (e *Event) String() string {
	if e.EntityID != "" {
		return string(e.Type) + ":" + e.EntityID
	}
	return string(e.Type)
}
