package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

type ABTest struct {
	ID              string                  `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name            string                  `gorm:"column:name;type:varchar(255);not null" json:"name"`
	TestVariables   pq.StringArray          `gorm:"column:test_variables;type:text[]" json:"testVariables"`
	SampleSize      int                     `gorm:"column:sample_size;type:integer;not null" json:"sampleSize"`
	WinnerMetric    enum.WinnerMetric       `gorm:"column:winner_metric;type:varchar(20);not null" json:"winnerMetric"`
	Distribution    enum.DistributionPolicy `gorm:"column:distribution;type:varchar(20);not null" json:"distribution"`
	Status          enum.ABTestStatus       `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	WinnerVariantID *string                 `gorm:"column:winner_variant_id;type:varchar(50)" json:"winnerVariantId,omitempty"`
	WinnerOverride  bool                    `gorm:"column:winner_override;type:boolean;not null;default:false" json:"winnerOverride"`
	WindowSeconds   int64                   `gorm:"column:window_seconds;type:bigint;not null;default:0" json:"windowSeconds"`
	StartedAt       *time.Time              `gorm:"column:started_at;type:timestamp" json:"startedAt,omitempty"`
	EndsAt          *time.Time              `gorm:"column:ends_at;type:timestamp" json:"endsAt,omitempty"`
	CompletedAt     *time.Time              `gorm:"column:completed_at;type:timestamp" json:"completedAt,omitempty"`
	CreatedAt       time.Time               `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`

	Variants []ABTestVariant `gorm:"foreignKey:TestID" json:"variants"`
}

func (ABTest) TableName() string {
	return "ab_tests"
}

func (t *ABTest) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("abt", 16)
	}
	return nil
}

type ABTestVariant struct {
	ID          string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TestID      string     `gorm:"column:test_id;type:varchar(50);index;not null" json:"testId"`
	Name        string     `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Position    int        `gorm:"column:position;type:integer;not null" json:"position"`
	SubjectLine string     `gorm:"column:subject_line;type:varchar(1000)" json:"subjectLine"`
	FromName    string     `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	SendTime    *time.Time `gorm:"column:send_time;type:timestamp" json:"sendTime,omitempty"`
	Content     string     `gorm:"column:content;type:text" json:"content"`
	Weight      int        `gorm:"column:weight;type:integer;not null;default:0" json:"weight"`

	SentCount      int  `gorm:"column:sent_count;type:integer;not null;default:0" json:"sentCount"`
	DeliveredCount int  `gorm:"column:delivered_count;type:integer;not null;default:0" json:"deliveredCount"`
	OpenCount      int  `gorm:"column:open_count;type:integer;not null;default:0" json:"openCount"`
	ClickCount     int  `gorm:"column:click_count;type:integer;not null;default:0" json:"clickCount"`
	ReplyCount     int  `gorm:"column:reply_count;type:integer;not null;default:0" json:"replyCount"`
	BounceCount    int  `gorm:"column:bounce_count;type:integer;not null;default:0" json:"bounceCount"`
	IsWinner       bool `gorm:"column:is_winner;type:boolean;not null;default:false" json:"isWinner"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (ABTestVariant) TableName() string {
	return "ab_test_variants"
}

func (v *ABTestVariant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = utils.GenerateNanoIDWithPrefix("abv", 16)
	}
	return nil
}

// Rate is events of the metric per send, 0 before the first send.
func (v *ABTestVariant) Rate(metric enum.WinnerMetric) float64 {
	if v.SentCount == 0 {
		return 0
	}
	var n int
	switch metric {
	case enum.WinnerMetricOpen:
		n = v.OpenCount
	case enum.WinnerMetricClick:
		n = v.ClickCount
	case enum.WinnerMetricReply:
		n = v.ReplyCount
	}
	return float64(n) / float64(v.SentCount)
}
