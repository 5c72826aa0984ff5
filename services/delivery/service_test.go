package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository/repositorytest"
	"github.com/customeros/mailgovernor/internal/utils"
	"github.com/customeros/mailgovernor/services/alerts"
	"github.com/customeros/mailgovernor/services/events/eventstest"
)

type recordingHealth struct {
	mu        sync.Mutex
	scheduled []string
}

func (h *recordingHealth) Recompute(context.Context, string) (*dto.HealthResult, error) {
	return nil, nil
}

func (h *recordingHealth) RecomputeAll(context.Context) (int, error) { return 0, nil }

func (h *recordingHealth) Schedule(accountID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduled = append(h.scheduled, accountID)
	return true
}

func (h *recordingHealth) Run(context.Context) {}

func (h *recordingHealth) Scheduled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.scheduled...)
}

type variantEvent struct {
	variantID string
	eventType enum.DeliveryEventType
}

type recordingVariants struct {
	events []variantEvent
	err    error
}

func (v *recordingVariants) RecordVariantEvent(_ context.Context, variantID string, eventType enum.DeliveryEventType) error {
	if v.err != nil {
		return v.err
	}
	v.events = append(v.events, variantEvent{variantID, eventType})
	return nil
}

type fixture struct {
	store     *repositorytest.Store
	publisher *eventstest.Publisher
	health    *recordingHealth
	variants  *recordingVariants
	metrics   *metrics.Metrics
	svc       *deliveryService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()

	store, repos := repositorytest.New()
	publisher := eventstest.NewPublisher()
	m := metrics.New(prometheus.NewRegistry())
	cfg := config.Defaults()
	f := &fixture{
		store:     store,
		publisher: publisher,
		health:    &recordingHealth{},
		variants:  &recordingVariants{},
		metrics:   m,
	}
	f.svc = NewDeliveryService(log, repos, cfg, Dependencies{
		Health:    f.health,
		Alerts:    alerts.NewAlertService(log, repos, publisher, m, cfg),
		Variants:  f.variants,
		Publisher: publisher,
		Metrics:   m,
	}).(*deliveryService)
	return f
}

func (f *fixture) account(t *testing.T, sent int) *models.SendingAccount {
	t.Helper()
	return f.store.PutAccount(models.SendingAccount{
		Address:     "sender@acme.io",
		Domain:      "acme.io",
		Status:      enum.AccountStatusActive,
		DailyLimit:  100,
		HourlyLimit: 10,
		SentCount:   sent,
	})
}

func bounce(messageID string) dto.IngestEvent {
	return dto.IngestEvent{
		MessageID: messageID,
		EventType: "bounce",
		Recipient: "someone@example.com",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Metadata:  map[string]any{"bounce_type": "hard", "reason": "550 mailbox unavailable", "provider": "ses"},
	}
}

func TestRecord_DuplicateBounceIsNoOp(t *testing.T) {
	f := setup(t)
	account := f.account(t, 200)
	email := f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: "<m1@acme.io>", Status: enum.SentEmailSent})

	first, err := f.svc.Record(context.Background(), bounce("<m1@acme.io>"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	afterFirst := f.store.Account(account.ID)
	emailAfterFirst := f.store.SentEmail(email.ID)

	second, err := f.svc.Record(context.Background(), bounce("m1@acme.io"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Event.ID, second.Event.ID)

	afterSecond := f.store.Account(account.ID)
	assert.Equal(t, 1, afterSecond.BounceCount)
	assert.Equal(t, afterFirst.BounceCount, afterSecond.BounceCount)
	assert.Equal(t, afterFirst.BounceRate, afterSecond.BounceRate)
	assert.Equal(t, emailAfterFirst.BounceCount, f.store.SentEmail(email.ID).BounceCount)
	assert.Len(t, f.store.Events(), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeliveryEvents.WithLabelValues("bounce", outcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeliveryEvents.WithLabelValues("bounce", outcomeDuplicate)))
	assert.Len(t, f.health.Scheduled(), 1, "a duplicate schedules nothing")
}

func TestRecord_AppliesCountersAndMetadata(t *testing.T) {
	f := setup(t)
	account := f.account(t, 200)
	email := f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: "m2@acme.io", Status: enum.SentEmailSent})

	result, err := f.svc.Record(context.Background(), bounce("m2@acme.io"))
	require.NoError(t, err)

	event := result.Event
	require.NotNil(t, event.EmailID)
	assert.Equal(t, email.ID, *event.EmailID)
	assert.Equal(t, account.ID, event.AccountID)
	assert.Equal(t, enum.EventBounce, event.EventType)
	assert.Equal(t, enum.EventSourceWebhook, event.Source)
	assert.True(t, event.Processed)
	require.NotNil(t, event.Metadata.Bounce)
	assert.Equal(t, "hard", event.Metadata.Bounce.BounceType)
	assert.Equal(t, "550 mailbox unavailable", event.Metadata.Bounce.Diagnostic)
	assert.Equal(t, map[string]any{"provider": "ses"}, event.Metadata.Extra)

	storedEmail := f.store.SentEmail(email.ID)
	assert.Equal(t, 1, storedEmail.BounceCount)
	require.NotNil(t, storedEmail.FirstEventAt)
	assert.Equal(t, []string{account.ID}, f.health.Scheduled())
	assert.False(t, result.AccountPaused)
}

func TestRecord_ResolvesByRecipientAddress(t *testing.T) {
	f := setup(t)
	account := f.account(t, 0)

	result, err := f.svc.Record(context.Background(), dto.IngestEvent{
		MessageID: "<reply-1@elsewhere.com>",
		EventType: "replied",
		Recipient: "Sender <SENDER@acme.io>",
		Source:    enum.EventSourceInternal,
	})
	require.NoError(t, err)
	assert.Equal(t, account.ID, result.Event.AccountID)
	assert.Nil(t, result.Event.EmailID)
	assert.Equal(t, enum.EventReply, result.Event.EventType)
	assert.Equal(t, enum.EventSourceInternal, result.Event.Source)
	assert.False(t, result.Event.Timestamp.IsZero())
	assert.Equal(t, 1, f.store.Account(account.ID).ReplyCount)
}

func TestRecord_Rejections(t *testing.T) {
	f := setup(t)
	f.account(t, 0)

	_, err := f.svc.Record(context.Background(), dto.IngestEvent{EventType: "open"})
	assert.True(t, governor_errors.IsValidation(err))

	_, err = f.svc.Record(context.Background(), dto.IngestEvent{MessageID: "x", EventType: "teleported"})
	assert.True(t, governor_errors.IsValidation(err))

	_, err = f.svc.Record(context.Background(), dto.IngestEvent{MessageID: "unknown", EventType: "open", Recipient: "nobody@nowhere.io"})
	assert.True(t, governor_errors.IsNotFound(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeliveryEvents.WithLabelValues("open", outcomeUnresolved)))
	assert.Empty(t, f.store.Events())
}

func TestRecord_StorageFailureIsPersistenceError(t *testing.T) {
	f := setup(t)
	f.account(t, 0)
	f.store.FailWith(errors.New("connection refused"))

	_, err := f.svc.Record(context.Background(), bounce("m3@acme.io"))
	assert.True(t, governor_errors.IsPersistence(err))
}

func TestRecord_PausesOnHardBounceThreshold(t *testing.T) {
	f := setup(t)
	account := f.account(t, 20)
	f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: "a@acme.io"})
	f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: "b@acme.io"})

	result, err := f.svc.Record(context.Background(), bounce("a@acme.io"))
	require.NoError(t, err)
	assert.False(t, result.AccountPaused, "1/20 is at the threshold, not above it")

	result, err = f.svc.Record(context.Background(), bounce("b@acme.io"))
	require.NoError(t, err)
	assert.True(t, result.AccountPaused)

	stored := f.store.Account(account.ID)
	assert.Equal(t, enum.AccountStatusPaused, stored.Status)
	assert.Contains(t, stored.StatusReason, "bounce rate")

	paused := eventstest.Of[dto.AccountPaused](f.publisher)
	require.Len(t, paused, 1)
	assert.Equal(t, account.ID, paused[0].AccountID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AccountsPaused))

	var bounceAlerts int
	for _, alert := range f.store.Alerts() {
		if alert.AlertType == enum.AlertHighBounceRate && !alert.IsResolved {
			bounceAlerts++
		}
	}
	assert.Equal(t, 1, bounceAlerts, "repeated breaches update one alert")
}

func TestRecord_NoPauseBelowMinimumVolume(t *testing.T) {
	f := setup(t)
	account := f.account(t, 5)
	f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: "c@acme.io"})

	result, err := f.svc.Record(context.Background(), bounce("c@acme.io"))
	require.NoError(t, err)
	assert.False(t, result.AccountPaused)
	assert.Equal(t, enum.AccountStatusActive, f.store.Account(account.ID).Status)
}

func TestRecord_PublishFailureDoesNotFailIngestion(t *testing.T) {
	f := setup(t)
	account := f.account(t, 20)
	f.publisher.FailWith(errors.New("broker down"))
	for _, id := range []string{"d1@acme.io", "d2@acme.io"} {
		f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: id})
		_, err := f.svc.Record(context.Background(), bounce(id))
		require.NoError(t, err)
	}
	assert.Equal(t, enum.AccountStatusPaused, f.store.Account(account.ID).Status)
}

func TestRecord_ForwardsVariantEvents(t *testing.T) {
	f := setup(t)
	account := f.account(t, 100)
	f.store.PutSentEmail(models.SentEmail{
		AccountID: account.ID,
		MessageID: "v@acme.io",
		ABTestID:  utils.Ptr("abt_1"),
		VariantID: utils.Ptr("var_a"),
	})

	_, err := f.svc.Record(context.Background(), dto.IngestEvent{MessageID: "v@acme.io", EventType: "open"})
	require.NoError(t, err)
	assert.Equal(t, []variantEvent{{"var_a", enum.EventOpen}}, f.variants.events)

	f.variants.err = errors.New("variant store down")
	_, err = f.svc.Record(context.Background(), dto.IngestEvent{MessageID: "v@acme.io", EventType: "click"})
	require.NoError(t, err)
}

func TestShouldPause(t *testing.T) {
	cfg := config.Defaults()
	tests := []struct {
		name    string
		account models.SendingAccount
		pause   bool
	}{
		{"healthy", models.SendingAccount{Status: enum.AccountStatusActive, SentCount: 100, BounceRate: utils.Ptr(0.01), ComplaintRate: utils.Ptr(0.0)}, false},
		{"bounces", models.SendingAccount{Status: enum.AccountStatusActive, SentCount: 100, BounceRate: utils.Ptr(0.06)}, true},
		{"complaints", models.SendingAccount{Status: enum.AccountStatusActive, SentCount: 100, ComplaintRate: utils.Ptr(0.004)}, true},
		{"low volume", models.SendingAccount{Status: enum.AccountStatusActive, SentCount: 10, BounceRate: utils.Ptr(0.5)}, false},
		{"observed volume counts", models.SendingAccount{Status: enum.AccountStatusActive, DeliveredCount: 30, BounceCount: 5, BounceRate: utils.Ptr(0.14)}, true},
		{"already paused", models.SendingAccount{Status: enum.AccountStatusPaused, SentCount: 100, BounceRate: utils.Ptr(0.5)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, pause := ShouldPause(&tt.account, cfg)
			assert.Equal(t, tt.pause, pause)
		})
	}
}

func TestListForEmail(t *testing.T) {
	f := setup(t)
	account := f.account(t, 100)
	email := f.store.PutSentEmail(models.SentEmail{AccountID: account.ID, MessageID: "l@acme.io"})

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, eventType := range []string{"delivered", "open", "click"} {
		_, err := f.svc.Record(context.Background(), dto.IngestEvent{
			MessageID: "l@acme.io",
			EventType: eventType,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	events, err := f.svc.ListForEmail(context.Background(), email.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, enum.EventClick, events[0].EventType)
	assert.Equal(t, enum.EventDelivered, events[2].EventType)

	_, err = f.svc.ListForEmail(context.Background(), "email_missing")
	assert.True(t, governor_errors.IsNotFound(err))
}
