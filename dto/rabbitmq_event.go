package dto

import (
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
)

// EnvelopeVersion is stamped on every published event.
const EnvelopeVersion = 1

// Event is the broker envelope around every governor event payload.
type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       any             `json:"data"`
}

// EventMetadata carries the trace and the actor of the request that produced the event.
type EventMetadata struct {
	Version     int    `json:"version"`
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	Operator    string `json:"operator,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Supported reports whether this build can read the envelope. Envelopes
// without a version predate versioning and read as version 1.
func (m EventMetadata) Supported() bool {
	return m.Version <= EnvelopeVersion
}

// OccurredAt is the zero time when Timestamp is missing or malformed.
func (m EventMetadata) OccurredAt() time.Time {
	at, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return at
}
