package dto

import (
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
)

// Broker payloads. The struct name is the event type on the wire.

type AccountPaused struct {
	AccountID     string   `json:"accountId"`
	Address       string   `json:"address"`
	Reason        string   `json:"reason"`
	BounceRate    *float64 `json:"bounceRate,omitempty"`
	ComplaintRate *float64 `json:"complaintRate,omitempty"`
}

type ReputationAlertRaised struct {
	AlertID       string             `json:"alertId"`
	AccountID     string             `json:"accountId"`
	AlertType     enum.AlertType     `json:"alertType"`
	Severity      enum.AlertSeverity `json:"severity"`
	DetectedValue float64            `json:"detectedValue"`
	Threshold     float64            `json:"threshold"`
	Message       string             `json:"message"`
}

type ABTestCompleted struct {
	TestID          string            `json:"testId"`
	WinnerVariantID string            `json:"winnerVariantId"`
	WinnerMetric    enum.WinnerMetric `json:"winnerMetric"`
	Override        bool              `json:"override"`
}

type DomainVerified struct {
	Domain        string                  `json:"domain"`
	Authenticated bool                    `json:"authenticated"`
	SpfStatus     enum.VerificationStatus `json:"spfStatus"`
	DkimStatus    enum.VerificationStatus `json:"dkimStatus"`
	DmarcStatus   enum.VerificationStatus `json:"dmarcStatus"`
}

// DeliveryEventReceived is produced by internal senders (reply detection,
// bounce processors) on the delivery-events queue.
type DeliveryEventReceived struct {
	MessageID string         `json:"messageId"`
	Event     string         `json:"event"`
	Recipient string         `json:"recipient,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
