package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

// ReputationAlert rows are deduplicated by a partial unique index on
// (account_id, alert_type) where is_resolved is false, created in the migration.
type ReputationAlert struct {
	ID              string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID       string             `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	AlertType       enum.AlertType     `gorm:"column:alert_type;type:varchar(50);not null" json:"alertType"`
	Severity        enum.AlertSeverity `gorm:"column:severity;type:varchar(20);not null" json:"severity"`
	DetectedValue   float64            `gorm:"column:detected_value;type:double precision" json:"detectedValue"`
	Threshold       float64            `gorm:"column:threshold;type:double precision" json:"threshold"`
	Message         string             `gorm:"column:message;type:text" json:"message"`
	Details         AlertDetails       `gorm:"column:details;type:jsonb" json:"details"`
	OccurrenceCount int                `gorm:"column:occurrence_count;type:integer;not null;default:1" json:"occurrenceCount"`
	IsResolved      bool               `gorm:"column:is_resolved;type:boolean;not null;default:false" json:"isResolved"`
	ResolvedAt      *time.Time         `gorm:"column:resolved_at;type:timestamp" json:"resolvedAt,omitempty"`
	ResolvedBy      string             `gorm:"column:resolved_by;type:varchar(255)" json:"resolvedBy,omitempty"`
	ResolutionNote  string             `gorm:"column:resolution_note;type:text" json:"resolutionNote,omitempty"`
	FirstDetectedAt time.Time          `gorm:"column:first_detected_at;type:timestamp" json:"firstDetectedAt"`
	LastDetectedAt  time.Time          `gorm:"column:last_detected_at;type:timestamp" json:"lastDetectedAt"`
	CreatedAt       time.Time          `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (ReputationAlert) TableName() string {
	return "reputation_alerts"
}

func (a *ReputationAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("alert", 16)
	}
	return nil
}

// AlertDetails is keyed by alert type: rate alerts carry the counts behind the
// rate, score alerts the score, blacklist alerts the listing summary.
type AlertDetails struct {
	Rate      *RateAlertDetails      `json:"rate,omitempty"`
	Score     *ScoreAlertDetails     `json:"score,omitempty"`
	Blacklist *BlacklistAlertDetails `json:"blacklist,omitempty"`
	Extra     map[string]any         `json:"extra,omitempty"`
}

type RateAlertDetails struct {
	EventCount int `json:"eventCount"`
	SentCount  int `json:"sentCount"`
}

type ScoreAlertDetails struct {
	HealthStatus enum.HealthStatus `json:"healthStatus"`
}

type BlacklistAlertDetails struct {
	Domain           string `json:"domain"`
	MajorListings    int    `json:"majorListings"`
	MinorListings    int    `json:"minorListings"`
	SpamTrapListings int    `json:"spamTrapListings"`
}

func (d AlertDetails) Value() (driver.Value, error) {
	return jsonValue(d)
}

func (d *AlertDetails) Scan(value interface{}) error {
	if value == nil {
		*d = AlertDetails{}
		return nil
	}
	return scanJSON(value, d)
}
