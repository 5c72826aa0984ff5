package dto

import (
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

type CreateTestInput struct {
	Name          string                  `json:"name"`
	TestVariables []string                `json:"testVariables"`
	SampleSize    int                     `json:"sampleSize"`
	WinnerMetric  enum.WinnerMetric       `json:"winnerMetric"`
	Distribution  enum.DistributionPolicy `json:"distribution"`
	// zero means the configured default window; Window wins over WindowHours
	Window      time.Duration  `json:"-"`
	WindowHours int            `json:"windowHours,omitempty"`
	Variants    []VariantInput `json:"variants"`
}

type VariantInput struct {
	Name        string     `json:"name"`
	SubjectLine string     `json:"subjectLine"`
	FromName    string     `json:"fromName"`
	SendTime    *time.Time `json:"sendTime,omitempty"`
	Content     string     `json:"content"`
	Weight      int        `json:"weight"`
}

type SendPlan struct {
	TestID  string                 `json:"testId"`
	Variant *models.ABTestVariant  `json:"variant"`
	Account *models.SendingAccount `json:"account"`
	Email   *models.SentEmail      `json:"email"`
}

type EvaluateResult struct {
	Decided         bool               `json:"decided"`
	WinnerVariantID string             `json:"winnerVariantId,omitempty"`
	Rates           map[string]float64 `json:"rates"`
}
