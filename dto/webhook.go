package dto

import (
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

// WebhookPayload is the body providers post to /webhook.
type WebhookPayload struct {
	Event     string         `json:"event"`
	MessageID string         `json:"messageId"`
	Recipient string         `json:"recipient,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p WebhookPayload) IngestEvent() IngestEvent {
	event := IngestEvent{
		MessageID: p.MessageID,
		EventType: p.Event,
		Recipient: p.Recipient,
		Metadata:  p.Metadata,
		Source:    enum.EventSourceWebhook,
	}
	if p.Timestamp != nil {
		event.Timestamp = *p.Timestamp
	}
	return event
}

type WebhookResponse struct {
	Success       bool                  `json:"success"`
	Duplicate     bool                  `json:"duplicate"`
	AccountPaused bool                  `json:"accountPaused,omitempty"`
	Event         *models.DeliveryEvent `json:"event"`
}

// ReplaySummary counts the outcomes of re-ingesting one day of archived webhooks.
type ReplaySummary struct {
	Day        string `json:"day"`
	Archived   int    `json:"archived"`
	Applied    int    `json:"applied"`
	Duplicates int    `json:"duplicates"`
	Unresolved int    `json:"unresolved"`
	Invalid    int    `json:"invalid"`
}
