package health

import (
	"math"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

// neutral is the sub-score of a metric with no data yet.
const neutral = 50.0

const authBonus = 10.0

const (
	weightBounce    = 0.30
	weightComplaint = 0.30
	weightOpen      = 0.20
	weightClick     = 0.10
	weightReply     = 0.10
)

// Rates at which a penalty reaches zero or a reward reaches full marks.
const (
	bounceCeiling    = 0.10
	complaintCeiling = 0.005
	openTarget       = 0.40
	clickTarget      = 0.05
	replyTarget      = 0.05
)

// InputsFor extracts the scoring inputs from an account row.
func InputsFor(account *models.SendingAccount) dto.HealthInputs {
	return dto.HealthInputs{
		BounceRate:    account.BounceRate,
		ComplaintRate: account.ComplaintRate,
		OpenRate:      account.OpenRate,
		ClickRate:     account.ClickRate,
		ReplyRate:     account.ReplyRate,
		SpfOk:         account.SpfOk,
		DkimOk:        account.DkimOk,
		DmarcOk:       account.DmarcOk,
	}
}

// Score is a pure function of its inputs.
func Score(in dto.HealthInputs) dto.HealthResult {
	components := map[string]float64{
		"bounce":    penalty(in.BounceRate, bounceCeiling),
		"complaint": penalty(in.ComplaintRate, complaintCeiling),
		"open":      reward(in.OpenRate, openTarget),
		"click":     reward(in.ClickRate, clickTarget),
		"reply":     reward(in.ReplyRate, replyTarget),
	}

	total := components["bounce"]*weightBounce +
		components["complaint"]*weightComplaint +
		components["open"]*weightOpen +
		components["click"]*weightClick +
		components["reply"]*weightReply

	bonus := in.SpfOk && in.DkimOk && in.DmarcOk
	if bonus {
		total += authBonus
	}

	score := int(math.Round(clamp(total)))
	return dto.HealthResult{
		Score:      score,
		Status:     enum.HealthStatusForScore(score),
		Components: components,
		AuthBonus:  bonus,
	}
}

func penalty(rate *float64, ceiling float64) float64 {
	if rate == nil {
		return neutral
	}
	return clamp(100 * (1 - *rate/ceiling))
}

func reward(rate *float64, target float64) float64 {
	if rate == nil {
		return neutral
	}
	return clamp(100 * math.Min(*rate/target, 1))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return neutral
	}
	return math.Max(0, math.Min(100, v))
}
