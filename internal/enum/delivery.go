package enum

type DeliveryEventType string

const (
	EventDelivered   DeliveryEventType = "delivered"
	EventBounce      DeliveryEventType = "bounce"
	EventComplaint   DeliveryEventType = "complaint"
	EventUnsubscribe DeliveryEventType = "unsubscribe"
	EventOpen        DeliveryEventType = "open"
	EventClick       DeliveryEventType = "click"
	EventReply       DeliveryEventType = "reply"
)

func (t DeliveryEventType) String() string {
	return string(t)
}

func (t DeliveryEventType) IsValid() bool {
	switch t {
	case EventDelivered, EventBounce, EventComplaint, EventUnsubscribe, EventOpen, EventClick, EventReply:
		return true
	}
	return false
}

// ParseDeliveryEventType accepts provider spellings ("bounced", "spamreport", "opened").
func ParseDeliveryEventType(s string) (DeliveryEventType, bool) {
	switch s {
	case "delivered", "delivery":
		return EventDelivered, true
	case "bounce", "bounced", "dropped", "hard_bounce", "soft_bounce":
		return EventBounce, true
	case "complaint", "spamreport", "spam_report", "complained":
		return EventComplaint, true
	case "unsubscribe", "unsubscribed", "group_unsubscribe":
		return EventUnsubscribe, true
	case "open", "opened":
		return EventOpen, true
	case "click", "clicked":
		return EventClick, true
	case "reply", "replied":
		return EventReply, true
	}
	return "", false
}

type EventSource string

const (
	EventSourceWebhook  EventSource = "webhook"
	EventSourceInternal EventSource = "internal"
)

func (s EventSource) String() string {
	return string(s)
}

type SentEmailStatus string

const (
	SentEmailQueued SentEmailStatus = "queued"
	SentEmailSent   SentEmailStatus = "sent"
	SentEmailFailed SentEmailStatus = "failed"
)

func (s SentEmailStatus) String() string {
	return string(s)
}
