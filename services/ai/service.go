package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
)

const (
	healthSystemPrompt    = "You are an email deliverability analyst. Explain a sending account's health in two or three short sentences for an operator. Mention the weakest metric and one concrete next step. Do not invent numbers."
	placementSystemPrompt = "You are an email deliverability analyst. Explain in two or three short sentences how likely this message is to reach the inbox and what to change first. Do not invent numbers."
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type aiService struct {
	log    logger.Logger
	cfg    *config.AIConfig
	client chatCompleter
}

// NewAIService returns a service that falls back to templated narratives when
// no OpenAI key is configured or the completion fails.
func NewAIService(log logger.Logger, cfg *config.AIConfig) interfaces.AIService {
	s := &aiService{log: log, cfg: cfg}
	if cfg.OpenAIAPIKey != "" {
		s.client = openai.NewClient(cfg.OpenAIAPIKey)
	}
	return s
}

func (s *aiService) HealthNarrative(ctx context.Context, account *models.SendingAccount, health *dto.HealthResult) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AIService.HealthNarrative")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	if health == nil {
		return "", errors.New("health result is required")
	}
	prompt := healthPrompt(account, health)
	return s.complete(ctx, span, healthSystemPrompt, prompt, func() string { return healthFallback(account, health) })
}

func (s *aiService) PlacementNarrative(ctx context.Context, content *dto.ContentAnalysisResult) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AIService.PlacementNarrative")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if content == nil {
		return "", errors.New("content analysis is required")
	}
	return s.complete(ctx, span, placementSystemPrompt, placementPrompt(content), func() string { return placementFallback(content) })
}

func (s *aiService) complete(ctx context.Context, span opentracing.Span, system, prompt string, fallback func() string) (string, error) {
	if s.client == nil {
		span.LogFields(tracingLog.String("source", "template"))
		return fallback(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no choices in completion")
	}
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("narrative completion failed, using template: %v", err)
		span.LogFields(tracingLog.String("source", "template"))
		return fallback(), nil
	}

	span.LogFields(tracingLog.String("source", "openai"), tracingLog.Int("tokens", resp.Usage.TotalTokens))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func healthPrompt(account *models.SendingAccount, health *dto.HealthResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account: %s (status %s)\n", account.Address, account.Status)
	fmt.Fprintf(&b, "Health score: %d (%s)\n", health.Score, health.Status)
	fmt.Fprintf(&b, "Sent: %d\n", account.SentCount)
	writeRate(&b, "Bounce rate", account.BounceRate)
	writeRate(&b, "Complaint rate", account.ComplaintRate)
	writeRate(&b, "Open rate", account.OpenRate)
	writeRate(&b, "Click rate", account.ClickRate)
	writeRate(&b, "Reply rate", account.ReplyRate)
	fmt.Fprintf(&b, "SPF ok: %t, DKIM ok: %t, DMARC ok: %t\n", account.SpfOk, account.DkimOk, account.DmarcOk)
	if account.WarmupInProgress {
		fmt.Fprintf(&b, "Warming up, current daily limit %d of %d\n", account.DailyLimit, account.WarmupMaxVolume)
	}
	return b.String()
}

func writeRate(b *strings.Builder, label string, rate *float64) {
	if rate == nil {
		fmt.Fprintf(b, "%s: no data\n", label)
		return
	}
	fmt.Fprintf(b, "%s: %.2f%%\n", label, *rate*100)
}

func placementPrompt(content *dto.ContentAnalysisResult) string {
	return fmt.Sprintf("Content score: %d\nSpam risk: %d\nRating: %s\nTriggers: %s\nSuggestions: %s\n",
		content.Score, content.SpamRisk, content.DeliverabilityRating,
		strings.Join(content.Triggers, ", "), strings.Join(content.Suggestions, "; "))
}

func healthFallback(account *models.SendingAccount, health *dto.HealthResult) string {
	weakest, lowest := "", 101.0
	for name, value := range health.Components {
		if value < lowest || (value == lowest && name < weakest) {
			weakest, lowest = name, value
		}
	}
	text := fmt.Sprintf("%s has a health score of %d (%s).", account.Address, health.Score, health.Status)
	if weakest != "" && lowest < 60 {
		text += fmt.Sprintf(" The weakest signal is %s at %.0f/100.", weakest, lowest)
	}
	if !(account.SpfOk && account.DkimOk && account.DmarcOk) {
		text += " Domain authentication is incomplete; fix SPF, DKIM and DMARC to earn the authentication bonus."
	}
	return text
}

func placementFallback(content *dto.ContentAnalysisResult) string {
	text := fmt.Sprintf("This message is rated %s with a spam risk of %d/100.", content.DeliverabilityRating, content.SpamRisk)
	if len(content.Suggestions) > 0 {
		text += " First: " + content.Suggestions[0]
	}
	return text
}
