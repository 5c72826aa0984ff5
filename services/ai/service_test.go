package ai

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/utils"
)

type fakeCompleter struct {
	requests []openai.ChatCompletionRequest
	reply    string
	err      error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, request)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  " + f.reply + "\n"}}},
	}, nil
}

func newTestService(client chatCompleter) *aiService {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	s := &aiService{log: log, cfg: &config.AIConfig{Model: "gpt-4o-mini", Timeout: time.Second, MaxTokens: 200}}
	if client != nil {
		s.client = client
	}
	return s
}

func sampleAccount() (*models.SendingAccount, *dto.HealthResult) {
	account := &models.SendingAccount{
		ID:         "acc_1",
		Address:    "ana@acme.io",
		Status:     enum.AccountStatusActive,
		SentCount:  400,
		BounceRate: utils.Ptr(0.06),
		OpenRate:   utils.Ptr(0.35),
		SpfOk:      true,
	}
	health := &dto.HealthResult{
		Score:      48,
		Status:     enum.HealthPoor,
		Components: map[string]float64{"bounce": 40, "complaint": 50, "open": 87.5},
	}
	return account, health
}

func TestHealthNarrative_UsesCompletion(t *testing.T) {
	client := &fakeCompleter{reply: "Bounces are hurting this account."}
	svc := newTestService(client)
	account, health := sampleAccount()

	text, err := svc.HealthNarrative(context.Background(), account, health)
	require.NoError(t, err)
	assert.Equal(t, "Bounces are hurting this account.", text)

	require.Len(t, client.requests, 1)
	request := client.requests[0]
	assert.Equal(t, "gpt-4o-mini", request.Model)
	assert.Equal(t, 200, request.MaxTokens)
	require.Len(t, request.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, request.Messages[0].Role)
	assert.Contains(t, request.Messages[1].Content, "Bounce rate: 6.00%")
	assert.Contains(t, request.Messages[1].Content, "Complaint rate: no data")
	assert.Contains(t, request.Messages[1].Content, "Health score: 48 (poor)")
}

func TestHealthNarrative_FallsBackOnFailure(t *testing.T) {
	svc := newTestService(&fakeCompleter{err: errors.New("429 rate limited")})
	account, health := sampleAccount()

	text, err := svc.HealthNarrative(context.Background(), account, health)
	require.NoError(t, err)
	assert.Contains(t, text, "ana@acme.io has a health score of 48 (poor).")
	assert.Contains(t, text, "weakest signal is bounce at 40/100")
	assert.Contains(t, text, "Domain authentication is incomplete")
}

func TestPlacementNarrative_TemplateWithoutKey(t *testing.T) {
	svc := NewAIService(nil, &config.AIConfig{}).(*aiService)
	assert.Nil(t, svc.client)

	text, err := svc.PlacementNarrative(context.Background(), &dto.ContentAnalysisResult{
		SpamRisk:             66,
		DeliverabilityRating: enum.RatingCritical,
		Suggestions:          []string{"Remove spam trigger phrases: free, money."},
	})
	require.NoError(t, err)
	assert.Equal(t, "This message is rated critical with a spam risk of 66/100. First: Remove spam trigger phrases: free, money.", text)

	_, err = svc.PlacementNarrative(context.Background(), nil)
	assert.Error(t, err)
}
