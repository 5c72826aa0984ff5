// Package warmup ramps the daily volume of new sending accounts.
package warmup

import (
	"time"

	"github.com/customeros/mailgovernor/internal/models"
)

const day = 24 * time.Hour

// DayIndex is the number of whole days since warmup started. A missing or
// future start counts as day 0, the lowest limit.
func DayIndex(account *models.SendingAccount, now time.Time) int {
	if account.WarmupStartedAt == nil {
		return 0
	}
	elapsed := now.Sub(*account.WarmupStartedAt)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / day)
}

// DailyLimit is the warmup cap for now: start + increment per day, capped at max.
func DailyLimit(account *models.SendingAccount, now time.Time) int {
	limit := account.WarmupStartVolume + account.WarmupDailyIncrement*DayIndex(account, now)
	if account.WarmupMaxVolume > 0 && limit > account.WarmupMaxVolume {
		limit = account.WarmupMaxVolume
	}
	if limit < 0 {
		return 0
	}
	return limit
}

// Reached reports whether the ramp has hit its ceiling at now.
func Reached(account *models.SendingAccount, now time.Time) bool {
	return account.WarmupMaxVolume > 0 && DailyLimit(account, now) >= account.WarmupMaxVolume
}

// EffectiveLimits are the daily and hourly caps selection must honor.
func EffectiveLimits(account *models.SendingAccount, now time.Time) (daily, hourly int) {
	if !account.IsWarming() {
		return account.DailyLimit, account.HourlyLimit
	}
	daily = DailyLimit(account, now)
	hourly = account.HourlyLimit
	if hourly <= 0 || hourly > daily {
		hourly = daily
	}
	return daily, hourly
}
