package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

func TestNewEventMetadata_TypedMemberAndPassthrough(t *testing.T) {
	raw := map[string]any{
		"bounce_type": "hard",
		"reason":      "550 mailbox unavailable",
		"sg_event_id": "abc",
	}
	m := NewEventMetadata(enum.EventBounce, raw)

	require.NotNil(t, m.Bounce)
	assert.Equal(t, "hard", m.Bounce.BounceType)
	assert.Equal(t, "550 mailbox unavailable", m.Bounce.Diagnostic)
	assert.Nil(t, m.Click)
	assert.Equal(t, map[string]any{"sg_event_id": "abc"}, m.Extra)
	// caller's map is untouched
	assert.Len(t, raw, 3)
}

func TestEventMetadata_ValueScan(t *testing.T) {
	m := NewEventMetadata(enum.EventClick, map[string]any{"url": "https://example.com"})
	v, err := m.Value()
	require.NoError(t, err)

	var out EventMetadata
	require.NoError(t, out.Scan([]byte(v.(string))))
	require.NotNil(t, out.Click)
	assert.Equal(t, "https://example.com", out.Click.URL)

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out.Click)
}

func TestSendingAccount_UsageWindows(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	a := SendingAccount{UsageDay: utils.DayKey(now), SentToday: 7, UsageHour: utils.HourKey(now), SentThisHour: 2}

	assert.Equal(t, 7, a.SentTodayAt(now))
	assert.Equal(t, 2, a.SentThisHourAt(now))
	assert.Equal(t, 7, a.SentTodayAt(now.Add(time.Hour)))
	assert.Equal(t, 0, a.SentThisHourAt(now.Add(time.Hour)))
	assert.Equal(t, 0, a.SentTodayAt(now.Add(24*time.Hour)))
}

func TestABTestVariant_Rate(t *testing.T) {
	v := ABTestVariant{SentCount: 100, ReplyCount: 8, OpenCount: 40}
	assert.InDelta(t, 0.08, v.Rate(enum.WinnerMetricReply), 1e-9)
	assert.InDelta(t, 0.40, v.Rate(enum.WinnerMetricOpen), 1e-9)
	assert.Equal(t, 0.0, (&ABTestVariant{}).Rate(enum.WinnerMetricReply))
}

func TestSendingAccount_DeriveRates(t *testing.T) {
	a := SendingAccount{}
	a.DeriveRates()
	assert.Nil(t, a.BounceRate)
	assert.Nil(t, a.OpenRate)

	a = SendingAccount{SentCount: 100, BounceCount: 2, ComplaintCount: 1, OpenCount: 40, ReplyCount: 5}
	a.DeriveRates()
	require.NotNil(t, a.BounceRate)
	assert.InDelta(t, 0.02, *a.BounceRate, 1e-9)
	assert.InDelta(t, 0.01, *a.ComplaintRate, 1e-9)
	assert.InDelta(t, 0.40, *a.OpenRate, 1e-9)
	assert.InDelta(t, 0.0, *a.ClickRate, 1e-9)
	assert.InDelta(t, 0.05, *a.ReplyRate, 1e-9)

	// webhook-only account: deliveries and bounces form the denominator
	a = SendingAccount{DeliveredCount: 3, BounceCount: 1}
	a.DeriveRates()
	assert.InDelta(t, 0.25, *a.BounceRate, 1e-9)
}
