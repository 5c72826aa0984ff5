package account

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository/repositorytest"
	"github.com/customeros/mailgovernor/internal/utils"
)

type scheduled struct{ ids []string }

func (s *scheduled) Recompute(context.Context, string) (*dto.HealthResult, error) { return nil, nil }
func (s *scheduled) RecomputeAll(context.Context) (int, error)                    { return 0, nil }
func (s *scheduled) Run(context.Context)                                          {}
func (s *scheduled) Schedule(accountID string) bool {
	s.ids = append(s.ids, accountID)
	return true
}

type fixture struct {
	store  *repositorytest.Store
	health *scheduled
	svc    *accountService
	now    time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()

	store, repos := repositorytest.New()
	f := &fixture{store: store, health: &scheduled{}, now: time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)}
	cfg := config.Defaults()
	cfg.MinHoursPerDay = 8
	f.svc = NewAccountService(log, repos, cfg, f.health).(*accountService)
	f.svc.clock = func() time.Time { return f.now }
	return f
}

func TestCreate(t *testing.T) {
	f := setup(t)

	account, err := f.svc.Create(context.Background(), dto.CreateAccountInput{
		Address:     "Ana Smith <Ana@Acme.IO>",
		FromName:    " Ana ",
		DailyLimit:  400,
		HourlyLimit: 50,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "ana@acme.io", account.Address)
	assert.Equal(t, "acme.io", account.Domain)
	assert.Equal(t, "Ana", account.FromName)
	assert.Equal(t, enum.EmailSMTP, account.Provider)
	assert.Equal(t, enum.AccountStatusActive, account.Status)
	assert.Equal(t, enum.WarmupNotStarted, account.WarmupState)
	assert.Equal(t, 50, account.HealthScore, "an account without metrics starts neutral")
	assert.NotNil(t, f.store.Account(account.ID))
}

func TestCreate_CopiesVerifiedDomain(t *testing.T) {
	f := setup(t)
	record, err := f.svc.repos.DomainRecordRepository.GetOrCreate(context.Background(), "acme.io")
	require.NoError(t, err)
	record.SpfStatus, record.DkimStatus, record.DmarcStatus = enum.VerificationValid, enum.VerificationValid, enum.VerificationValid
	require.NoError(t, f.svc.repos.DomainRecordRepository.Save(context.Background(), record))

	account, err := f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "ana@acme.io", DailyLimit: 400, HourlyLimit: 50})
	require.NoError(t, err)
	assert.True(t, account.DomainAuthenticated)
	assert.Equal(t, 60, account.HealthScore, "neutral metrics plus the auth bonus")
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "ana@acme.io", DailyLimit: 400, HourlyLimit: 50})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input dto.CreateAccountInput
		field string
	}{
		{"bad address", dto.CreateAccountInput{Address: "ana", DailyLimit: 10, HourlyLimit: 1}, "address"},
		{"unknown provider", dto.CreateAccountInput{Address: "bo@acme.io", Provider: "pigeon", DailyLimit: 10, HourlyLimit: 1}, "provider"},
		{"no daily limit", dto.CreateAccountInput{Address: "bo@acme.io", HourlyLimit: 1}, "dailyLimit"},
		{"no hourly limit", dto.CreateAccountInput{Address: "bo@acme.io", DailyLimit: 10}, "hourlyLimit"},
		{"daily below hourly times hours", dto.CreateAccountInput{Address: "bo@acme.io", DailyLimit: 399, HourlyLimit: 50}, "dailyLimit"},
		{"warmup start", dto.CreateAccountInput{Address: "bo@acme.io", DailyLimit: 80, HourlyLimit: 10, Warmup: &dto.WarmupPlan{}}, "warmup.startVolume"},
		{"warmup ceiling", dto.CreateAccountInput{Address: "bo@acme.io", DailyLimit: 80, HourlyLimit: 10, Warmup: &dto.WarmupPlan{StartVolume: 20, MaxVolume: 10}}, "warmup.maxVolume"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.input)
			var validationErr *governor_errors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}

	_, err = f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "ANA@acme.io", DailyLimit: 400, HourlyLimit: 50})
	assert.True(t, governor_errors.IsConflict(err), "duplicate address")
}

func TestWarmupLifecycle(t *testing.T) {
	f := setup(t)
	account, err := f.svc.Create(context.Background(), dto.CreateAccountInput{
		Address:     "ana@acme.io",
		DailyLimit:  100,
		HourlyLimit: 10,
		Warmup:      &dto.WarmupPlan{StartVolume: 5, DailyIncrement: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, enum.WarmupWarming, account.WarmupState)
	assert.Equal(t, 100, account.WarmupMaxVolume)
	assert.Equal(t, 5, account.DailyLimit)

	f.now = f.now.Add(9 * 24 * time.Hour)
	limits, err := f.svc.Limits(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, limits.EffectiveDailyLimit)
	assert.Equal(t, 10, limits.EffectiveHourlyLimit)
	assert.Equal(t, 9, limits.WarmupDay)

	_, err = f.svc.StartWarmup(context.Background(), account.ID, dto.WarmupPlan{StartVolume: 1})
	assert.True(t, governor_errors.IsConflict(err), "already warming")

	reset, err := f.svc.ResetWarmup(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.WarmupWarming, reset.WarmupState)
	assert.Equal(t, f.now, *reset.WarmupStartedAt)

	limits, err = f.svc.Limits(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, limits.EffectiveDailyLimit)
	assert.Equal(t, 0, limits.WarmupDay)
}

func TestStartWarmup_RequiresPlanOnReset(t *testing.T) {
	f := setup(t)
	account, err := f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "ana@acme.io", DailyLimit: 100, HourlyLimit: 10})
	require.NoError(t, err)

	_, err = f.svc.ResetWarmup(context.Background(), account.ID)
	assert.True(t, governor_errors.IsValidation(err))

	started, err := f.svc.StartWarmup(context.Background(), account.ID, dto.WarmupPlan{StartVolume: 10, DailyIncrement: 10, MaxVolume: 60})
	require.NoError(t, err)
	assert.Equal(t, enum.WarmupWarming, started.WarmupState)
	assert.True(t, started.WarmupInProgress)
	assert.Equal(t, 60, f.store.Account(account.ID).WarmupMaxVolume)
}

func TestLimitsOf_Usage(t *testing.T) {
	now := time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)
	account := &models.SendingAccount{
		ID:           "acc_1",
		DailyLimit:   100,
		HourlyLimit:  10,
		WarmupState:  enum.WarmupNotStarted,
		UsageDay:     utils.DayKey(now),
		SentToday:    95,
		UsageHour:    utils.HourKey(now),
		SentThisHour: 2,
	}
	limits := LimitsOf(account, now)
	assert.Equal(t, 5, limits.RemainingToday)
	assert.Equal(t, 5, limits.RemainingThisHour, "hourly room is capped by the daily room")

	limits = LimitsOf(account, now.Add(24*time.Hour))
	assert.Equal(t, 0, limits.SentToday, "a stale window counts as zero")
	assert.Equal(t, 100, limits.RemainingToday)
	assert.Equal(t, 10, limits.RemainingThisHour)
}

func TestSetStatus(t *testing.T) {
	f := setup(t)
	account, err := f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "ana@acme.io", DailyLimit: 100, HourlyLimit: 10})
	require.NoError(t, err)

	paused, err := f.svc.SetStatus(context.Background(), account.ID, enum.AccountStatusPaused, "manual review")
	require.NoError(t, err)
	assert.Equal(t, enum.AccountStatusPaused, paused.Status)
	assert.Equal(t, "manual review", paused.StatusReason)

	active, err := f.svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.svc.SetStatus(context.Background(), account.ID, "deleted", "")
	assert.True(t, governor_errors.IsValidation(err))
	_, err = f.svc.SetStatus(context.Background(), "acc_missing", enum.AccountStatusActive, "")
	assert.True(t, governor_errors.IsNotFound(err))
}

func TestUpdateAuthFlags_SchedulesRecompute(t *testing.T) {
	f := setup(t)
	a, err := f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "ana@acme.io", DailyLimit: 100, HourlyLimit: 10})
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), dto.CreateAccountInput{Address: "bo@other.io", DailyLimit: 100, HourlyLimit: 10})
	require.NoError(t, err)

	updated, err := f.svc.UpdateAuthFlags(context.Background(), " ACME.io ", true, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	assert.Equal(t, []string{a.ID}, f.health.ids)
	assert.True(t, f.store.Account(a.ID).DomainAuthenticated)
}

func TestDeliverySettings(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(models.SendingAccount{ID: "acc_a", Address: "a@acme.io", Domain: "acme.io", Status: enum.AccountStatusActive,
		HealthScore: 90, SentCount: 100, DeliveredCount: 95, BounceCount: 5, OpenCount: 40, ReplyCount: 4})
	f.store.PutAccount(models.SendingAccount{ID: "acc_b", Address: "b@acme.io", Domain: "acme.io", Status: enum.AccountStatusPaused,
		HealthScore: 30, SentCount: 100, DeliveredCount: 85, BounceCount: 15, ComplaintCount: 1})

	settings, err := f.svc.DeliverySettings(context.Background())
	require.NoError(t, err)
	overall := settings.OverallMetrics
	assert.Len(t, settings.Accounts, 2)
	assert.Equal(t, 2, overall.TotalAccounts)
	assert.Equal(t, 1, overall.ActiveAccounts)
	assert.Equal(t, 1, overall.PausedAccounts)
	assert.InDelta(t, 60.0, overall.AverageHealthScore, 1e-9)
	assert.Equal(t, 200, overall.TotalSent)
	assert.InDelta(t, 0.10, overall.BounceRate, 1e-9)
	assert.InDelta(t, 0.005, overall.ComplaintRate, 1e-9)
	assert.InDelta(t, 0.20, overall.OpenRate, 1e-9)
	assert.InDelta(t, 0.02, overall.ReplyRate, 1e-9)

	f.store.FailWith(errors.New("db down"))
	_, err = f.svc.DeliverySettings(context.Background())
	assert.True(t, governor_errors.IsPersistence(err))
}
