package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

type DeliveryEvent struct {
	ID        string                 `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string                 `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	EmailID   *string                `gorm:"column:email_id;type:varchar(50);index" json:"emailId,omitempty"`
	MessageID string                 `gorm:"column:message_id;type:varchar(255);not null;uniqueIndex:idx_delivery_events_message_event" json:"messageId"`
	EventType enum.DeliveryEventType `gorm:"column:event_type;type:varchar(20);not null;uniqueIndex:idx_delivery_events_message_event" json:"eventType"`
	Recipient string                 `gorm:"column:recipient;type:varchar(255)" json:"recipient,omitempty"`
	Timestamp time.Time              `gorm:"column:timestamp;type:timestamp;not null" json:"timestamp"`
	Source    enum.EventSource       `gorm:"column:source;type:varchar(20);not null" json:"source"`
	Metadata  EventMetadata          `gorm:"column:metadata;type:jsonb" json:"metadata"`
	Processed bool                   `gorm:"column:processed;type:boolean;not null;default:false" json:"processed"`
	CreatedAt time.Time              `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (DeliveryEvent) TableName() string {
	return "delivery_events"
}

func (e *DeliveryEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("evt", 16)
	}
	return nil
}

// EventMetadata holds the typed payload for the event's type. Only the member
// matching EventType is set; Extra carries provider fields that are stored but never read.
type EventMetadata struct {
	Bounce    *BounceMetadata    `json:"bounce,omitempty"`
	Complaint *ComplaintMetadata `json:"complaint,omitempty"`
	Click     *ClickMetadata     `json:"click,omitempty"`
	Open      *OpenMetadata      `json:"open,omitempty"`
	Reply     *ReplyMetadata     `json:"reply,omitempty"`
	Extra     map[string]any     `json:"extra,omitempty"`
}

type BounceMetadata struct {
	BounceType string `json:"bounceType,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type ComplaintMetadata struct {
	FeedbackType string `json:"feedbackType,omitempty"`
}

type ClickMetadata struct {
	URL string `json:"url,omitempty"`
}

type OpenMetadata struct {
	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type ReplyMetadata struct {
	Snippet string `json:"snippet,omitempty"`
}

func (m EventMetadata) Value() (driver.Value, error) {
	return jsonValue(m)
}

func (m *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = EventMetadata{}
		return nil
	}
	return scanJSON(value, m)
}

// NewEventMetadata sorts a loose provider payload into the typed member for eventType.
// Keys consumed by the typed member are removed from the passthrough map.
func NewEventMetadata(eventType enum.DeliveryEventType, raw map[string]any) EventMetadata {
	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		extra[k] = v
	}
	take := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := extra[k]; ok {
				if s, ok := v.(string); ok {
					delete(extra, k)
					return s
				}
			}
		}
		return ""
	}

	var m EventMetadata
	switch eventType {
	case enum.EventBounce:
		m.Bounce = &BounceMetadata{
			BounceType: take("bounceType", "bounce_type", "type"),
			Diagnostic: take("diagnostic", "reason", "description"),
		}
	case enum.EventComplaint:
		m.Complaint = &ComplaintMetadata{FeedbackType: take("feedbackType", "feedback_type")}
	case enum.EventClick:
		m.Click = &ClickMetadata{URL: take("url", "link")}
	case enum.EventOpen:
		m.Open = &OpenMetadata{UserAgent: take("userAgent", "useragent", "user_agent"), IP: take("ip")}
	case enum.EventReply:
		m.Reply = &ReplyMetadata{Snippet: take("snippet", "text")}
	}
	if len(extra) > 0 {
		m.Extra = extra
	}
	return m
}
