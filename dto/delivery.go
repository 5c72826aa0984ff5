package dto

import (
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

type IngestEvent struct {
	MessageID string
	EventType string
	Recipient string
	Timestamp time.Time
	Metadata  map[string]any
	Source    enum.EventSource
}

type RecordResult struct {
	Duplicate     bool                  `json:"duplicate"`
	Event         *models.DeliveryEvent `json:"event"`
	AccountPaused bool                  `json:"accountPaused,omitempty"`
}
