package abtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/repository/repositorytest"
	"github.com/customeros/mailgovernor/services/events/eventstest"
	"github.com/customeros/mailgovernor/services/rotation"
)

type fixture struct {
	store     *repositorytest.Store
	repos     *repository.Repositories
	publisher *eventstest.Publisher
	svc       *abTestService
	now       time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()

	store, repos := repositorytest.New()
	publisher := eventstest.NewPublisher()
	f := &fixture{
		store:     store,
		repos:     repos,
		publisher: publisher,
		now:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	store.SetClock(func() time.Time { return f.now })
	f.svc = NewABTestService(log, repos, rotation.NewRotationService(log, repos, nil, nil), publisher, config.Defaults()).(*abTestService)
	f.svc.clock = func() time.Time { return f.now }
	return f
}

func twoVariants(sampleSize int, metric enum.WinnerMetric) dto.CreateTestInput {
	return dto.CreateTestInput{
		Name:         "subject test",
		SampleSize:   sampleSize,
		WinnerMetric: metric,
		Window:       48 * time.Hour,
		Variants: []dto.VariantInput{
			{SubjectLine: "Quick question", Content: "hi"},
			{SubjectLine: "Following up", Content: "hi"},
		},
	}
}

func (f *fixture) running(t *testing.T, input dto.CreateTestInput) *models.ABTest {
	t.Helper()
	test, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	test, err = f.svc.Start(context.Background(), test.ID)
	require.NoError(t, err)
	return test
}

func (f *fixture) bump(t *testing.T, variantID, column string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.repos.ABTestRepository.IncrementVariantCounter(context.Background(), variantID, column))
	}
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t)
	valid := twoVariants(10, enum.WinnerMetricReply)

	tests := []struct {
		name   string
		mutate func(in *dto.CreateTestInput)
		field  string
	}{
		{"no name", func(in *dto.CreateTestInput) { in.Name = " " }, "name"},
		{"one variant", func(in *dto.CreateTestInput) { in.Variants = in.Variants[:1] }, "variants"},
		{"no sample", func(in *dto.CreateTestInput) { in.SampleSize = 0 }, "sampleSize"},
		{"bad metric", func(in *dto.CreateTestInput) { in.WinnerMetric = "revenue" }, "winnerMetric"},
		{"bad distribution", func(in *dto.CreateTestInput) { in.Distribution = "random" }, "distribution"},
		{"negative window", func(in *dto.CreateTestInput) { in.Window = -time.Hour }, "window"},
		{"unknown variable", func(in *dto.CreateTestInput) { in.TestVariables = []string{"color"} }, "testVariables"},
		{"weights not 100", func(in *dto.CreateTestInput) {
			in.Distribution = enum.DistributionWeighted
			in.Variants[0].Weight, in.Variants[1].Weight = 50, 40
		}, "variants"},
		{"zero weight", func(in *dto.CreateTestInput) {
			in.Distribution = enum.DistributionWeighted
			in.Variants[0].Weight, in.Variants[1].Weight = 100, 0
		}, "variants[1].weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			input.Variants = append([]dto.VariantInput(nil), valid.Variants...)
			tt.mutate(&input)
			_, err := f.svc.Create(context.Background(), input)
			require.Error(t, err)
			var validationErr *governor_errors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestCreate_Defaults(t *testing.T) {
	f := setup(t)
	input := twoVariants(10, "")
	input.Variants = append(input.Variants, dto.VariantInput{SubjectLine: "Third", Content: "hi"})
	input.Window = 0

	test, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enum.ABTestDraft, test.Status)
	assert.Equal(t, enum.WinnerMetricOpen, test.WinnerMetric)
	assert.Equal(t, enum.DistributionEqual, test.Distribution)
	assert.Equal(t, []string{VariableSubjectLine}, []string(test.TestVariables))
	assert.Equal(t, int64(config.Defaults().ABTestDefaultWindow/time.Second), test.WindowSeconds)
	require.Len(t, test.Variants, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{test.Variants[0].Name, test.Variants[1].Name, test.Variants[2].Name})
	assert.Equal(t, 34, test.Variants[0].Weight)
	assert.Equal(t, 33, test.Variants[2].Weight)
}

func TestStart_OnlyFromDraft(t *testing.T) {
	f := setup(t)
	test := f.running(t, twoVariants(10, enum.WinnerMetricOpen))
	assert.Equal(t, enum.ABTestRunning, test.Status)
	require.NotNil(t, test.EndsAt)
	assert.Equal(t, f.now.Add(48*time.Hour), *test.EndsAt)

	_, err := f.svc.Start(context.Background(), test.ID)
	assert.True(t, governor_errors.IsConflict(err))

	_, err = f.svc.Start(context.Background(), "abt_missing")
	assert.True(t, governor_errors.IsNotFound(err))
}

func TestAssign_StableAndWeighted(t *testing.T) {
	test := &models.ABTest{
		ID:           "abt_weighted",
		Distribution: enum.DistributionWeighted,
		Variants:     []models.ABTestVariant{{ID: "a", Weight: 80}, {ID: "b", Weight: 20}},
	}

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		recipient := fmt.Sprintf("user%d@example.com", i)
		first := Assign(test, recipient)
		assert.Equal(t, first.ID, Assign(test, "  USER"+fmt.Sprint(i)+"@EXAMPLE.COM ").ID)
		counts[first.ID]++
	}
	assert.InDelta(t, 1600, counts["a"], 120)
	assert.InDelta(t, 400, counts["b"], 120)

	test.Distribution = enum.DistributionEqual
	counts = map[string]int{}
	for i := 0; i < 2000; i++ {
		counts[Assign(test, fmt.Sprintf("user%d@example.com", i)).ID]++
	}
	assert.InDelta(t, 1000, counts["a"], 120)
}

func TestEvaluate_ReplyRateWinner(t *testing.T) {
	f := setup(t)
	test := f.running(t, twoVariants(100, enum.WinnerMetricReply))
	a, b := test.Variants[0], test.Variants[1]

	f.bump(t, a.ID, "sent_count", 100)
	f.bump(t, b.ID, "sent_count", 99)
	for i := 0; i < 8; i++ {
		require.NoError(t, f.svc.RecordVariantEvent(context.Background(), a.ID, enum.EventReply))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.RecordVariantEvent(context.Background(), b.ID, enum.EventReply))
	}

	result, err := f.svc.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)
	assert.False(t, result.Decided, "variant B has not reached the sample size")

	f.bump(t, b.ID, "sent_count", 1)
	result, err = f.svc.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)
	assert.True(t, result.Decided)
	assert.Equal(t, a.ID, result.WinnerVariantID)
	assert.InDelta(t, 0.08, result.Rates[a.ID], 1e-9)
	assert.InDelta(t, 0.05, result.Rates[b.ID], 1e-9)

	stored, err := f.svc.Get(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.ABTestCompleted, stored.Status)
	assert.True(t, f.store.Variant(a.ID).IsWinner)
	assert.False(t, f.store.Variant(b.ID).IsWinner)

	completed := eventstest.Of[dto.ABTestCompleted](f.publisher)
	require.Len(t, completed, 1)
	assert.Equal(t, a.ID, completed[0].WinnerVariantID)
	assert.False(t, completed[0].Override)

	again, err := f.svc.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.WinnerVariantID)
	assert.Len(t, eventstest.Of[dto.ABTestCompleted](f.publisher), 1)
}

func TestWinner_TieGoesToEarliestVariant(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	test := &models.ABTest{
		SampleSize:   10,
		WinnerMetric: enum.WinnerMetricOpen,
		Variants: []models.ABTestVariant{
			{ID: "late", Position: 0, SentCount: 10, OpenCount: 3, CreatedAt: created.Add(time.Second)},
			{ID: "early", Position: 1, SentCount: 10, OpenCount: 3, CreatedAt: created},
		},
	}
	winner, ok := Winner(test)
	require.True(t, ok)
	assert.Equal(t, "early", winner.ID)
}

func TestOverrideWinner(t *testing.T) {
	f := setup(t)
	test := f.running(t, twoVariants(1000, enum.WinnerMetricOpen))
	a, b := test.Variants[0], test.Variants[1]

	overridden, err := f.svc.OverrideWinner(context.Background(), test.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.ABTestCompleted, overridden.Status)
	assert.True(t, overridden.WinnerOverride)
	require.NotNil(t, overridden.WinnerVariantID)
	assert.Equal(t, b.ID, *overridden.WinnerVariantID)

	_, err = f.svc.OverrideWinner(context.Background(), test.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, f.store.Variant(a.ID).IsWinner)
	assert.False(t, f.store.Variant(b.ID).IsWinner)

	_, err = f.svc.OverrideWinner(context.Background(), test.ID, "abv_other")
	assert.True(t, governor_errors.IsNotFound(err))

	completed := eventstest.Of[dto.ABTestCompleted](f.publisher)
	require.Len(t, completed, 2)
	assert.True(t, completed[1].Override)
}

func TestPrepareSend(t *testing.T) {
	f := setup(t)
	account := f.store.PutAccount(models.SendingAccount{
		Address:    "sender@acme.io",
		Domain:     "acme.io",
		Status:     enum.AccountStatusActive,
		DailyLimit: 50,
	})
	draft, err := f.svc.Create(context.Background(), twoVariants(10, enum.WinnerMetricOpen))
	require.NoError(t, err)

	_, err = f.svc.PrepareSend(context.Background(), draft.ID, "lead@example.com", nil)
	assert.True(t, governor_errors.IsConflict(err), "draft tests do not send")

	test, err := f.svc.Start(context.Background(), draft.ID)
	require.NoError(t, err)

	plan, err := f.svc.PrepareSend(context.Background(), test.ID, "Lead@Example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, account.ID, plan.Account.ID)
	assert.Equal(t, Assign(test, "lead@example.com").ID, plan.Variant.ID)
	assert.Equal(t, 1, plan.Variant.SentCount)

	email := f.store.SentEmail(plan.Email.ID)
	require.NotNil(t, email)
	assert.Equal(t, "lead@example.com", email.Recipient)
	assert.Equal(t, plan.Variant.SubjectLine, email.Subject)
	require.NotNil(t, email.VariantID)
	assert.Equal(t, plan.Variant.ID, *email.VariantID)
	assert.Contains(t, email.MessageID, "@acme.io")
	assert.Equal(t, enum.SentEmailQueued, email.Status)

	assert.Equal(t, 1, f.store.Variant(plan.Variant.ID).SentCount)
	assert.Equal(t, 1, f.store.Account(account.ID).SentToday)

	_, err = f.svc.PrepareSend(context.Background(), test.ID, "other@example.com", []string{account.ID})
	assert.True(t, governor_errors.IsExhaustion(err))
}

func TestRecordVariantEvent_IgnoresUntrackedTypes(t *testing.T) {
	f := setup(t)
	test := f.running(t, twoVariants(10, enum.WinnerMetricClick))
	variant := test.Variants[0]

	require.NoError(t, f.svc.RecordVariantEvent(context.Background(), variant.ID, enum.EventComplaint))
	require.NoError(t, f.svc.RecordVariantEvent(context.Background(), variant.ID, enum.EventClick))
	stored := f.store.Variant(variant.ID)
	assert.Equal(t, 1, stored.ClickCount)

	err := f.svc.RecordVariantEvent(context.Background(), "abv_missing", enum.EventClick)
	assert.True(t, governor_errors.IsNotFound(err))
}

func TestExpireOverdue(t *testing.T) {
	f := setup(t)
	starved := f.running(t, twoVariants(100, enum.WinnerMetricOpen))
	sampled := f.running(t, twoVariants(5, enum.WinnerMetricOpen))
	fresh := twoVariants(100, enum.WinnerMetricOpen)
	fresh.Window = 30 * 24 * time.Hour
	ongoing := f.running(t, fresh)

	for _, v := range sampled.Variants {
		f.bump(t, v.ID, "sent_count", 5)
	}
	f.bump(t, sampled.Variants[1].ID, "open_count", 2)

	f.now = f.now.Add(49 * time.Hour)
	failed, err := f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	get := func(id string) *models.ABTest {
		test, err := f.svc.Get(context.Background(), id)
		require.NoError(t, err)
		return test
	}
	assert.Equal(t, enum.ABTestFailed, get(starved.ID).Status)
	decided := get(sampled.ID)
	assert.Equal(t, enum.ABTestCompleted, decided.Status)
	assert.Equal(t, sampled.Variants[1].ID, *decided.WinnerVariantID)
	assert.Equal(t, enum.ABTestRunning, get(ongoing.ID).Status)
}

func TestEvaluateRunning(t *testing.T) {
	f := setup(t)
	ready := f.running(t, twoVariants(2, enum.WinnerMetricOpen))
	f.running(t, twoVariants(2, enum.WinnerMetricOpen))
	for _, v := range ready.Variants {
		f.bump(t, v.ID, "sent_count", 2)
	}

	decided, err := f.svc.EvaluateRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, decided)
}
