package handlers

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
)

type mockDelivery struct {
	mock.Mock
}

func (m *mockDelivery) Record(ctx context.Context, event dto.IngestEvent) (*dto.RecordResult, error) {
	args := m.Called(ctx, event)
	result, _ := args.Get(0).(*dto.RecordResult)
	return result, args.Error(1)
}

func (m *mockDelivery) ListForEmail(ctx context.Context, emailID string) ([]models.DeliveryEvent, error) {
	args := m.Called(ctx, emailID)
	events, _ := args.Get(0).([]models.DeliveryEvent)
	return events, args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *mockStorage) Download(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockStorage) ArchiveWebhook(ctx context.Context, body []byte) (string, error) {
	args := m.Called(ctx, body)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) ListWebhooks(ctx context.Context, day time.Time) ([]string, error) {
	args := m.Called(ctx, day)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

type mockSending struct {
	mock.Mock
}

func (m *mockSending) Send(ctx context.Context, request dto.SendRequest) (*dto.SendResult, error) {
	args := m.Called(ctx, request)
	result, _ := args.Get(0).(*dto.SendResult)
	return result, args.Error(1)
}

func (m *mockSending) TestSend(ctx context.Context, request dto.TestSendRequest) (*dto.SendResult, error) {
	args := m.Called(ctx, request)
	result, _ := args.Get(0).(*dto.SendResult)
	return result, args.Error(1)
}

type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) Create(ctx context.Context, input dto.CreateAccountInput) (*models.SendingAccount, error) {
	args := m.Called(ctx, input)
	account, _ := args.Get(0).(*models.SendingAccount)
	return account, args.Error(1)
}

func (m *mockAccounts) Get(ctx context.Context, id string) (*models.SendingAccount, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*models.SendingAccount)
	return account, args.Error(1)
}

func (m *mockAccounts) List(ctx context.Context) ([]models.SendingAccount, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]models.SendingAccount)
	return accounts, args.Error(1)
}

func (m *mockAccounts) ListActive(ctx context.Context) ([]models.SendingAccount, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]models.SendingAccount)
	return accounts, args.Error(1)
}

func (m *mockAccounts) SetStatus(ctx context.Context, id string, status enum.AccountStatus, reason string) (*models.SendingAccount, error) {
	args := m.Called(ctx, id, status, reason)
	account, _ := args.Get(0).(*models.SendingAccount)
	return account, args.Error(1)
}

func (m *mockAccounts) StartWarmup(ctx context.Context, id string, plan dto.WarmupPlan) (*models.SendingAccount, error) {
	args := m.Called(ctx, id, plan)
	account, _ := args.Get(0).(*models.SendingAccount)
	return account, args.Error(1)
}

func (m *mockAccounts) ResetWarmup(ctx context.Context, id string) (*models.SendingAccount, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*models.SendingAccount)
	return account, args.Error(1)
}

func (m *mockAccounts) UpdateAuthFlags(ctx context.Context, domain string, spf, dkim, dmarc bool) (int64, error) {
	args := m.Called(ctx, domain, spf, dkim, dmarc)
	return int64(args.Int(0)), args.Error(1)
}

func (m *mockAccounts) Limits(ctx context.Context, id string) (*dto.SendingLimits, error) {
	args := m.Called(ctx, id)
	limits, _ := args.Get(0).(*dto.SendingLimits)
	return limits, args.Error(1)
}

func (m *mockAccounts) DeliverySettings(ctx context.Context) (*dto.DeliverySettings, error) {
	args := m.Called(ctx)
	settings, _ := args.Get(0).(*dto.DeliverySettings)
	return settings, args.Error(1)
}

type mockContent struct {
	mock.Mock
}

func (m *mockContent) Check(ctx context.Context, input dto.ContentInput) (*dto.ContentAnalysisResult, error) {
	args := m.Called(ctx, input)
	result, _ := args.Get(0).(*dto.ContentAnalysisResult)
	return result, args.Error(1)
}

func (m *mockContent) ListSpamWords(ctx context.Context) ([]models.SpamWord, error) {
	args := m.Called(ctx)
	words, _ := args.Get(0).([]models.SpamWord)
	return words, args.Error(1)
}

func (m *mockContent) CreateSpamWord(ctx context.Context, word models.SpamWord) (*models.SpamWord, error) {
	args := m.Called(ctx, word)
	created, _ := args.Get(0).(*models.SpamWord)
	return created, args.Error(1)
}

func (m *mockContent) UpdateSpamWord(ctx context.Context, id string, update repository.SpamWordUpdate) (*models.SpamWord, error) {
	args := m.Called(ctx, id, update)
	updated, _ := args.Get(0).(*models.SpamWord)
	return updated, args.Error(1)
}

func (m *mockContent) SeedDefaults(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return int64(args.Int(0)), args.Error(1)
}
