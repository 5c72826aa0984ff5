package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

// SentEmail is a message the governor handed to a transport. Its counters are
// a materialization of the delivery event stream for that message.
type SentEmail struct {
	ID        string               `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string               `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	MessageID string               `gorm:"column:message_id;type:varchar(255);uniqueIndex;not null" json:"messageId"`
	Recipient string               `gorm:"column:recipient;type:varchar(255);index" json:"recipient"`
	Subject   string               `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	ABTestID  *string              `gorm:"column:ab_test_id;type:varchar(50);index" json:"abTestId,omitempty"`
	VariantID *string              `gorm:"column:variant_id;type:varchar(50);index" json:"variantId,omitempty"`
	Status    enum.SentEmailStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Error     string               `gorm:"column:error;type:text" json:"error,omitempty"`

	DeliveredCount   int        `gorm:"column:delivered_count;type:integer;not null;default:0" json:"deliveredCount"`
	BounceCount      int        `gorm:"column:bounce_count;type:integer;not null;default:0" json:"bounceCount"`
	ComplaintCount   int        `gorm:"column:complaint_count;type:integer;not null;default:0" json:"complaintCount"`
	UnsubscribeCount int        `gorm:"column:unsubscribe_count;type:integer;not null;default:0" json:"unsubscribeCount"`
	OpenCount        int        `gorm:"column:open_count;type:integer;not null;default:0" json:"openCount"`
	ClickCount       int        `gorm:"column:click_count;type:integer;not null;default:0" json:"clickCount"`
	ReplyCount       int        `gorm:"column:reply_count;type:integer;not null;default:0" json:"replyCount"`
	FirstEventAt     *time.Time `gorm:"column:first_event_at;type:timestamp" json:"firstEventAt,omitempty"`
	LastEventAt      *time.Time `gorm:"column:last_event_at;type:timestamp" json:"lastEventAt,omitempty"`

	SentAt    *time.Time `gorm:"column:sent_at;type:timestamp" json:"sentAt,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SentEmail) TableName() string {
	return "sent_emails"
}

func (e *SentEmail) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 16)
	}
	return nil
}

// CounterColumn names the per-event counter shared by sending_accounts and sent_emails.
func CounterColumn(eventType enum.DeliveryEventType) string {
	switch eventType {
	case enum.EventDelivered:
		return "delivered_count"
	case enum.EventBounce:
		return "bounce_count"
	case enum.EventComplaint:
		return "complaint_count"
	case enum.EventUnsubscribe:
		return "unsubscribe_count"
	case enum.EventOpen:
		return "open_count"
	case enum.EventClick:
		return "click_count"
	case enum.EventReply:
		return "reply_count"
	}
	return ""
}
