package sending

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository/repositorytest"
	"github.com/customeros/mailgovernor/internal/utils"
	"github.com/customeros/mailgovernor/services/abtest"
	"github.com/customeros/mailgovernor/services/content"
	"github.com/customeros/mailgovernor/services/events/eventstest"
	"github.com/customeros/mailgovernor/services/rotation"
)

type recordingTransport struct {
	messages []dto.TransportMessage
	accounts []string
	err      error
}

func (t *recordingTransport) Send(_ context.Context, account *models.SendingAccount, message dto.TransportMessage) (*dto.TransportResult, error) {
	if t.err != nil {
		return nil, t.err
	}
	t.messages = append(t.messages, message)
	t.accounts = append(t.accounts, account.ID)
	return &dto.TransportResult{ProviderMessageID: "provider-" + message.MessageID}, nil
}

type fixture struct {
	store     *repositorytest.Store
	transport *recordingTransport
	metrics   *metrics.Metrics
	cfg       *config.GovernorConfig
	svc       *dispatcher
	abtests   interfaces.ABTestService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()

	store, repos := repositorytest.New()
	m := metrics.New(prometheus.NewRegistry())
	cfg := config.Defaults()
	rotationService := rotation.NewRotationService(log, repos, nil, m)
	abtests := abtest.NewABTestService(log, repos, rotationService, eventstest.NewPublisher(), cfg)
	transport := &recordingTransport{}

	for _, w := range []models.SpamWord{
		{Word: "free", Category: "marketing", Score: 5, Active: true},
		{Word: "money", Category: "financial", Score: 4, Active: true},
		{Word: "act now", Category: "urgency", Score: 5, Active: true},
	} {
		w := w
		require.NoError(t, repos.SpamWordRepository.Create(context.Background(), &w))
	}

	svc := NewDispatcher(log, repos, cfg, Dependencies{
		Rotation:  rotationService,
		ABTests:   abtests,
		Content:   content.NewContentService(log, repos, m),
		Transport: transport,
		Metrics:   m,
	}).(*dispatcher)
	return &fixture{store: store, transport: transport, metrics: m, cfg: cfg, svc: svc, abtests: abtests}
}

func activeAccount(id string, score, daily int) models.SendingAccount {
	return models.SendingAccount{
		ID:          id,
		Address:     id + "@acme.io",
		Domain:      "acme.io",
		Status:      enum.AccountStatusActive,
		DailyLimit:  daily,
		HourlyLimit: daily,
		HealthScore: score,
		WarmupState: enum.WarmupNotStarted,
	}
}

func cleanRequest() dto.SendRequest {
	return dto.SendRequest{
		To:      "Lead <Lead@Example.com>",
		Subject: "Notes from our call",
		Text:    "Thanks for the time today. Attached are the notes we discussed.",
	}
}

func TestSend_ReservesRegistersAndDelivers(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(activeAccount("acc_a", 90, 10))
	f.store.PutAccount(activeAccount("acc_b", 70, 10))

	result, err := f.svc.Send(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.Equal(t, enum.SentEmailSent, result.Status)
	assert.Equal(t, "acc_a", result.AccountID)
	assert.Equal(t, "acc_a@acme.io", result.From)
	assert.Equal(t, "provider-"+result.MessageID, result.ProviderMessageID)
	require.NotNil(t, result.Content)

	require.Len(t, f.transport.messages, 1)
	assert.Equal(t, "lead@example.com", f.transport.messages[0].To)
	assert.Equal(t, result.MessageID, f.transport.messages[0].MessageID)

	email := f.store.SentEmail(result.EmailID)
	require.NotNil(t, email)
	assert.Equal(t, enum.SentEmailSent, email.Status)
	assert.NotNil(t, email.SentAt)
	assert.Equal(t, "lead@example.com", email.Recipient)
	assert.Equal(t, 1, f.store.Account("acc_a").SentToday)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sends.WithLabelValues(outcomeSent)))
}

func TestSend_ContentGate(t *testing.T) {
	f := setup(t)
	f.cfg.RejectContentRating = "poor"
	f.store.PutAccount(activeAccount("acc_a", 90, 10))

	spammy := dto.SendRequest{
		To:      "lead@example.com",
		Subject: "FREE MONEY!!! ACT NOW",
		Text:    "Free money for you, act now!!!",
	}

	_, err := f.svc.Send(context.Background(), spammy)
	var validationErr *governor_errors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "content", validationErr.Field)
	assert.Empty(t, f.transport.messages)
	assert.Zero(t, f.store.Account("acc_a").SentToday, "a rejected send must not spend a slot")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sends.WithLabelValues(outcomeRejected)))

	spammy.SkipContentCheck = true
	result, err := f.svc.Send(context.Background(), spammy)
	require.NoError(t, err)
	assert.Equal(t, enum.SentEmailSent, result.Status)
	assert.Nil(t, result.Content)
}

func TestSend_Exhaustion(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(activeAccount("acc_a", 90, 1))

	_, err := f.svc.Send(context.Background(), cleanRequest())
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), cleanRequest())
	assert.True(t, governor_errors.IsExhaustion(err))
	assert.Len(t, f.transport.messages, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sends.WithLabelValues(outcomeExhausted)))
}

func TestSend_TransportFailureIsRecorded(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(activeAccount("acc_a", 90, 10))
	f.transport.err = errors.New("421 try again later")

	result, err := f.svc.Send(context.Background(), cleanRequest())
	require.NoError(t, err)
	assert.Equal(t, enum.SentEmailFailed, result.Status)
	assert.Equal(t, "421 try again later", result.Error)

	email := f.store.SentEmail(result.EmailID)
	assert.Equal(t, enum.SentEmailFailed, email.Status)
	assert.Equal(t, "421 try again later", email.Error)
	assert.Equal(t, 1, f.store.Account("acc_a").SentToday)
}

func TestSend_Validation(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name    string
		request dto.SendRequest
		field   string
	}{
		{"missing recipient", dto.SendRequest{Subject: "s", Text: "t"}, "to"},
		{"bad recipient", dto.SendRequest{To: "nobody", Subject: "s", Text: "t"}, "to"},
		{"missing subject", dto.SendRequest{To: "lead@example.com", Text: "t"}, "subject"},
		{"missing body", dto.SendRequest{To: "lead@example.com", Subject: "s"}, "html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), tt.request)
			var validationErr *governor_errors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestSend_ABTestUsesVariant(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(activeAccount("acc_a", 90, 10))

	test, err := f.abtests.Create(context.Background(), dto.CreateTestInput{
		Name:       "subject test",
		SampleSize: 10,
		Window:     24 * time.Hour,
		Variants: []dto.VariantInput{
			{SubjectLine: "Quick question", FromName: "Ana", Content: "<p>Hi there, do you have a minute this week?</p>"},
			{SubjectLine: "Following up", FromName: "Ana", Content: "<p>Hi there, circling back on my last note.</p>"},
		},
	})
	require.NoError(t, err)
	_, err = f.abtests.Start(context.Background(), test.ID)
	require.NoError(t, err)

	request := dto.SendRequest{To: "lead@example.com", ABTestID: test.ID}
	result, err := f.svc.Send(context.Background(), request)
	require.NoError(t, err)
	require.NotEmpty(t, result.VariantID)

	expected := abtest.Assign(test, "lead@example.com")
	assert.Equal(t, expected.ID, result.VariantID)
	require.Len(t, f.transport.messages, 1)
	assert.Equal(t, expected.SubjectLine, f.transport.messages[0].Subject)
	assert.Equal(t, expected.Content, f.transport.messages[0].HTML)
	assert.Equal(t, 1, f.store.Variant(expected.ID).SentCount)

	email := f.store.SentEmail(result.EmailID)
	require.NotNil(t, email.VariantID)
	assert.Equal(t, expected.ID, *email.VariantID)
}

func TestSend_ABTestMustBeRunning(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(activeAccount("acc_a", 90, 10))
	test, err := f.abtests.Create(context.Background(), dto.CreateTestInput{
		Name:       "draft",
		SampleSize: 10,
		Variants:   []dto.VariantInput{{SubjectLine: "a", Content: "a"}, {SubjectLine: "b", Content: "b"}},
	})
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), dto.SendRequest{To: "lead@example.com", ABTestID: test.ID})
	assert.True(t, governor_errors.IsConflict(err))
	assert.Empty(t, f.transport.messages)
}

func TestTestSend(t *testing.T) {
	f := setup(t)
	full := activeAccount("acc_full", 90, 1)
	full.SentToday = 1
	full.UsageDay = utils.DayKey(utils.Now())
	f.store.PutAccount(full)

	result, err := f.svc.TestSend(context.Background(), dto.TestSendRequest{
		To:             "qa@example.com",
		Subject:        "FREE MONEY!!! ACT NOW",
		HTML:           "<p>Free money</p>",
		FromName:       "QA",
		EmailAccountID: "acc_full",
	})
	require.NoError(t, err)
	assert.Equal(t, enum.SentEmailSent, result.Status)
	assert.Equal(t, "acc_full", result.AccountID)
	require.NotNil(t, result.Content)
	assert.Contains(t, result.Content.Triggers, "spam_word:free")
	assert.Equal(t, 1, f.store.Account("acc_full").SentToday, "test sends bypass the counters")

	_, err = f.svc.TestSend(context.Background(), dto.TestSendRequest{
		To: "qa@example.com", Subject: "s", HTML: "h", EmailAccountID: "acc_missing",
	})
	assert.True(t, governor_errors.IsNotFound(err))

	_, err = f.svc.TestSend(context.Background(), dto.TestSendRequest{To: "qa@example.com", Subject: "s", HTML: "h"})
	assert.True(t, governor_errors.IsValidation(err))
}

func TestSend_PersistenceFailsClosed(t *testing.T) {
	f := setup(t)
	f.store.PutAccount(activeAccount("acc_a", 90, 10))
	// warm the dictionary cache so the failure hits the reservation
	_, err := f.svc.deps.Content.Check(context.Background(), dto.ContentInput{Subject: "x"})
	require.NoError(t, err)
	f.store.FailWith(errors.New("connection refused"))

	_, err = f.svc.Send(context.Background(), cleanRequest())
	assert.True(t, governor_errors.IsPersistence(err))
	assert.Empty(t, f.transport.messages)
}
