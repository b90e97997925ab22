package domain

import (
	"encoding/json"
	"time"
)

// Event is a telemetry event emitted by the collector (request served, frontend
// error received, rate limit exceeded). JSON tags define the wire shape on the
// Kafka topic; the worker and the Loki push client parse the same shape.
type Event struct {
	UserID    string    `json:"userId,omitempty"`
	EventType string    `json:"eventType"`
	Source    string    `json:"source"`
	Metadata  []byte    `json:"metadata,omitempty"` // JSON payload specific to EventType
	CreatedAt time.Time `json:"createdAt"`
}

// NewEvent returns an Event with CreatedAt set to now and metadata marshaled as JSON.
// A metadata marshal failure yields an event without metadata rather than no event.
func NewEvent(userID, eventType, source string, metadata any) *Event {
	e := &Event{
		UserID:    userID,
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			e.Metadata = b
		}
	}
	return e
}
