package dto

import "github.com/customeros/mailgovernor/internal/enum"

// HealthInputs are the metrics a score is derived from. Nil rates are unknown.
type HealthInputs struct {
	BounceRate    *float64
	ComplaintRate *float64
	OpenRate      *float64
	ClickRate     *float64
	ReplyRate     *float64
	SpfOk         bool
	DkimOk        bool
	DmarcOk       bool
}

type HealthResult struct {
	AccountID  string             `json:"accountId,omitempty"`
	Score      int                `json:"score"`
	Status     enum.HealthStatus  `json:"status"`
	Components map[string]float64 `json:"components"`
	AuthBonus  bool               `json:"authBonus"`
}
