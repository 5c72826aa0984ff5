package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

type SendingAccount struct {
	ID           string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Address      string             `gorm:"column:address;type:varchar(255);uniqueIndex;not null" json:"address"`
	Domain       string             `gorm:"column:domain;type:varchar(255);index;not null" json:"domain"`
	FromName     string             `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	Provider     enum.EmailProvider `gorm:"column:provider;type:varchar(50);not null" json:"provider"`
	Status       enum.AccountStatus `gorm:"column:status;type:varchar(20);index;not null;default:active" json:"status"`
	StatusReason string             `gorm:"column:status_reason;type:text" json:"statusReason,omitempty"`

	DailyLimit  int `gorm:"column:daily_limit;type:integer;not null" json:"dailyLimit"`
	HourlyLimit int `gorm:"column:hourly_limit;type:integer;not null" json:"hourlyLimit"`

	WarmupState          enum.WarmupState `gorm:"column:warmup_state;type:varchar(20);not null;default:not_started" json:"warmupState"`
	WarmupInProgress     bool             `gorm:"column:warmup_in_progress;type:boolean;not null;default:false" json:"warmupInProgress"`
	WarmupStartedAt      *time.Time       `gorm:"column:warmup_started_at;type:timestamp" json:"warmupStartedAt,omitempty"`
	WarmupCompletedAt    *time.Time       `gorm:"column:warmup_completed_at;type:timestamp" json:"warmupCompletedAt,omitempty"`
	WarmupStartVolume    int              `gorm:"column:warmup_start_volume;type:integer;not null;default:0" json:"warmupStartVolume"`
	WarmupDailyIncrement int              `gorm:"column:warmup_daily_increment;type:integer;not null;default:0" json:"warmupDailyIncrement"`
	WarmupMaxVolume      int              `gorm:"column:warmup_max_volume;type:integer;not null;default:0" json:"warmupMaxVolume"`

	// usage windows, written only by the rotation reservation
	LastUsedAt         *time.Time `gorm:"column:last_used_at;type:timestamp" json:"lastUsedAt,omitempty"`
	LastRotationUsedAt *time.Time `gorm:"column:last_rotation_used_at;type:timestamp" json:"lastRotationUsedAt,omitempty"`
	UsageDay           string     `gorm:"column:usage_day;type:varchar(10)" json:"usageDay"`
	SentToday          int        `gorm:"column:sent_today;type:integer;not null;default:0" json:"sentToday"`
	UsageHour          string     `gorm:"column:usage_hour;type:varchar(13)" json:"usageHour"`
	SentThisHour       int        `gorm:"column:sent_this_hour;type:integer;not null;default:0" json:"sentThisHour"`
	SentCount          int        `gorm:"column:sent_count;type:integer;not null;default:0" json:"sentCount"`

	DeliveredCount   int `gorm:"column:delivered_count;type:integer;not null;default:0" json:"deliveredCount"`
	BounceCount      int `gorm:"column:bounce_count;type:integer;not null;default:0" json:"bounceCount"`
	ComplaintCount   int `gorm:"column:complaint_count;type:integer;not null;default:0" json:"complaintCount"`
	UnsubscribeCount int `gorm:"column:unsubscribe_count;type:integer;not null;default:0" json:"unsubscribeCount"`
	OpenCount        int `gorm:"column:open_count;type:integer;not null;default:0" json:"openCount"`
	ClickCount       int `gorm:"column:click_count;type:integer;not null;default:0" json:"clickCount"`
	ReplyCount       int `gorm:"column:reply_count;type:integer;not null;default:0" json:"replyCount"`

	// NULL until the account has volume
	BounceRate    *float64 `gorm:"column:bounce_rate;type:double precision" json:"bounceRate"`
	ComplaintRate *float64 `gorm:"column:complaint_rate;type:double precision" json:"complaintRate"`
	OpenRate      *float64 `gorm:"column:open_rate;type:double precision" json:"openRate"`
	ClickRate     *float64 `gorm:"column:click_rate;type:double precision" json:"clickRate"`
	ReplyRate     *float64 `gorm:"column:reply_rate;type:double precision" json:"replyRate"`

	HealthScore     int               `gorm:"column:health_score;type:integer;not null;default:0" json:"healthScore"`
	HealthStatus    enum.HealthStatus `gorm:"column:health_status;type:varchar(20)" json:"healthStatus"`
	HealthUpdatedAt *time.Time        `gorm:"column:health_updated_at;type:timestamp" json:"healthUpdatedAt,omitempty"`

	DomainAuthenticated bool `gorm:"column:domain_authenticated;type:boolean;not null;default:false" json:"domainAuthenticated"`
	SpfOk               bool `gorm:"column:spf_ok;type:boolean;not null;default:false" json:"spfOk"`
	DkimOk              bool `gorm:"column:dkim_ok;type:boolean;not null;default:false" json:"dkimOk"`
	DmarcOk             bool `gorm:"column:dmarc_ok;type:boolean;not null;default:false" json:"dmarcOk"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SendingAccount) TableName() string {
	return "sending_accounts"
}

func (a *SendingAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acc", 16)
	}
	return nil
}

// SentTodayAt is the daily usage as seen at t; a stale window counts as zero.
func (a *SendingAccount) SentTodayAt(t time.Time) int {
	if a.UsageDay != utils.DayKey(t) {
		return 0
	}
	return a.SentToday
}

func (a *SendingAccount) SentThisHourAt(t time.Time) int {
	if a.UsageHour != utils.HourKey(t) {
		return 0
	}
	return a.SentThisHour
}

func (a *SendingAccount) IsWarming() bool {
	return a.WarmupState == enum.WarmupWarming || (a.WarmupInProgress && a.WarmupState != enum.WarmupComplete)
}

// DeriveRates recomputes the rate columns from the counters. The denominator is
// the larger of rotation sends and observed deliveries plus bounces, so accounts
// fed only by webhooks still get rates.
func (a *SendingAccount) DeriveRates() {
	denominator := a.SentCount
	if observed := a.DeliveredCount + a.BounceCount; observed > denominator {
		denominator = observed
	}
	if denominator == 0 {
		a.BounceRate, a.ComplaintRate, a.OpenRate, a.ClickRate, a.ReplyRate = nil, nil, nil, nil, nil
		return
	}
	rate := func(n int) *float64 {
		r := float64(n) / float64(denominator)
		if r > 1 {
			r = 1
		}
		return &r
	}
	a.BounceRate = rate(a.BounceCount)
	a.ComplaintRate = rate(a.ComplaintCount)
	a.OpenRate = rate(a.OpenCount)
	a.ClickRate = rate(a.ClickCount)
	a.ReplyRate = rate(a.ReplyCount)
}
