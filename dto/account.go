package dto

import (
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

type CreateAccountInput struct {
	Address     string             `json:"address"`
	FromName    string             `json:"fromName"`
	Provider    enum.EmailProvider `json:"provider"`
	DailyLimit  int                `json:"dailyLimit"`
	HourlyLimit int                `json:"hourlyLimit"`
	Warmup      *WarmupPlan        `json:"warmup,omitempty"`
}

type WarmupPlan struct {
	StartVolume    int `json:"startVolume"`
	DailyIncrement int `json:"dailyIncrement"`
	MaxVolume      int `json:"maxVolume"`
}

type SendingLimits struct {
	AccountID             string             `json:"accountId"`
	Address               string             `json:"address"`
	Status                enum.AccountStatus `json:"status"`
	ConfiguredDailyLimit  int                `json:"configuredDailyLimit"`
	ConfiguredHourlyLimit int                `json:"configuredHourlyLimit"`
	EffectiveDailyLimit   int                `json:"effectiveDailyLimit"`
	EffectiveHourlyLimit  int                `json:"effectiveHourlyLimit"`
	SentToday             int                `json:"sentToday"`
	SentThisHour          int                `json:"sentThisHour"`
	RemainingToday        int                `json:"remainingToday"`
	RemainingThisHour     int                `json:"remainingThisHour"`
	WarmupState           enum.WarmupState   `json:"warmupState"`
	WarmupDay             int                `json:"warmupDay"`
	WarmupMaxVolume       int                `json:"warmupMaxVolume,omitempty"`
}

type DeliverySettings struct {
	Accounts       []models.SendingAccount `json:"accounts"`
	Domains        []models.DomainRecord   `json:"domains"`
	OverallMetrics OverallMetrics          `json:"overallMetrics"`
}

type OverallMetrics struct {
	TotalAccounts      int     `json:"totalAccounts"`
	ActiveAccounts     int     `json:"activeAccounts"`
	PausedAccounts     int     `json:"pausedAccounts"`
	AverageHealthScore float64 `json:"averageHealthScore"`
	TotalSent          int     `json:"totalSent"`
	BounceRate         float64 `json:"bounceRate"`
	ComplaintRate      float64 `json:"complaintRate"`
	OpenRate           float64 `json:"openRate"`
	ClickRate          float64 `json:"clickRate"`
	ReplyRate          float64 `json:"replyRate"`
	OpenAlerts         int64   `json:"openAlerts"`
}
