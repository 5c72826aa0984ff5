package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

const (
	outcomeApplied    = "applied"
	outcomeDuplicate  = "duplicate"
	outcomeUnresolved = "unresolved"
	outcomeError      = "error"
)

// VariantRecorder receives the events of messages sent as part of an A/B test.
type VariantRecorder interface {
	RecordVariantEvent(ctx context.Context, variantID string, eventType enum.DeliveryEventType) error
}

type Dependencies struct {
	Health    interfaces.HealthService
	Alerts    interfaces.AlertService
	Variants  VariantRecorder
	Publisher interfaces.EventPublisher
	Metrics   *metrics.Metrics
}

type deliveryService struct {
	log   logger.Logger
	repos *repository.Repositories
	cfg   *config.GovernorConfig
	deps  Dependencies
}

func NewDeliveryService(log logger.Logger, repos *repository.Repositories, cfg *config.GovernorConfig, deps Dependencies) interfaces.DeliveryService {
	return &deliveryService{
		log:   log,
		repos: repos,
		cfg:   cfg,
		deps:  deps,
	}
}

// target is what an incoming event was resolved to. email is nil when the
// event matched an account by recipient address only.
type target struct {
	account *models.SendingAccount
	email   *models.SentEmail
}

func (s *deliveryService) Record(ctx context.Context, input dto.IngestEvent) (*dto.RecordResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.Record")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(
		tracingLog.String("messageId", input.MessageID),
		tracingLog.String("event", input.EventType),
		tracingLog.String("source", input.Source.String()),
	)

	messageID := utils.NormalizeMessageID(input.MessageID)
	if messageID == "" {
		return nil, governor_errors.NewValidationError("messageId", "is required")
	}
	eventType, ok := enum.ParseDeliveryEventType(strings.ToLower(strings.TrimSpace(input.EventType)))
	if !ok {
		return nil, governor_errors.NewValidationError("event", fmt.Sprintf("unknown event type %q", input.EventType))
	}
	source := input.Source
	if source == "" {
		source = enum.EventSourceWebhook
	}
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = utils.Now()
	}

	resolved, err := s.resolve(ctx, messageID, input.Recipient)
	if err != nil {
		outcome := outcomeError
		if governor_errors.IsNotFound(err) {
			outcome = outcomeUnresolved
		}
		s.deps.Metrics.ObserveDeliveryEvent(eventType.String(), outcome)
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagAccount(span, resolved.account.ID)

	event := &models.DeliveryEvent{
		AccountID: resolved.account.ID,
		MessageID: messageID,
		EventType: eventType,
		Recipient: strings.ToLower(strings.TrimSpace(input.Recipient)),
		Timestamp: timestamp.UTC(),
		Source:    source,
		Metadata:  models.NewEventMetadata(eventType, input.Metadata),
	}
	if resolved.email != nil {
		event.EmailID = &resolved.email.ID
	}

	applied, err := s.repos.DeliveryEventRepository.Apply(ctx, event)
	if err != nil {
		s.deps.Metrics.ObserveDeliveryEvent(eventType.String(), outcomeError)
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("apply delivery event", "account", resolved.account.ID, err)
	}

	if applied.Duplicate {
		s.deps.Metrics.ObserveDeliveryEvent(eventType.String(), outcomeDuplicate)
		span.LogFields(tracingLog.Bool("duplicate", true))
		return &dto.RecordResult{Duplicate: true, Event: applied.Event}, nil
	}
	s.deps.Metrics.ObserveDeliveryEvent(eventType.String(), outcomeApplied)

	result := &dto.RecordResult{Event: applied.Event}
	account := applied.Account
	if account == nil {
		account = resolved.account
	}

	paused, err := s.enforceThresholds(ctx, account)
	if err != nil {
		// the event is already durable; the next event re-checks the thresholds
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to pause account %s: %v", account.ID, err)
	}
	result.AccountPaused = paused

	if s.deps.Alerts != nil {
		if _, err := s.deps.Alerts.Evaluate(ctx, account); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("alert evaluation failed for %s: %v", account.ID, err)
		}
	}

	if resolved.email != nil && resolved.email.VariantID != nil && s.deps.Variants != nil {
		if err := s.deps.Variants.RecordVariantEvent(ctx, *resolved.email.VariantID, eventType); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to record %s on variant %s: %v", eventType, *resolved.email.VariantID, err)
		}
	}

	if s.deps.Health != nil {
		s.deps.Health.Schedule(account.ID)
	}

	return result, nil
}

// resolve finds the account an event belongs to: by the message id of a sent
// email first, then by the recipient being one of our own addresses.
func (s *deliveryService) resolve(ctx context.Context, messageID, recipient string) (*target, error) {
	email, err := s.repos.SentEmailRepository.GetByMessageID(ctx, messageID)
	switch {
	case err == nil:
		account, err := s.repos.SendingAccountRepository.GetByID(ctx, email.AccountID)
		if err != nil {
			return nil, repository.ServiceError("resolve delivery event", "account", email.AccountID, err)
		}
		return &target{account: account, email: email}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, governor_errors.NewPersistenceError("resolve delivery event", err)
	}

	address := utils.NormalizeEmail(recipient)
	if address == "" {
		return nil, governor_errors.NewNotFoundError("email", messageID)
	}
	account, err := s.repos.SendingAccountRepository.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, governor_errors.NewNotFoundError("email", messageID)
		}
		return nil, governor_errors.NewPersistenceError("resolve delivery event", err)
	}
	return &target{account: account}, nil
}

// ShouldPause reports the hard threshold an account has crossed, if any.
// Accounts below the minimum volume are never paused.
func ShouldPause(account *models.SendingAccount, cfg *config.GovernorConfig) (string, bool) {
	if account.Status != enum.AccountStatusActive || volume(account) < cfg.PauseMinVolume {
		return "", false
	}
	if account.ComplaintRate != nil && *account.ComplaintRate > cfg.PauseComplaintRate {
		return fmt.Sprintf("complaint rate %.2f%% above %.2f%%", *account.ComplaintRate*100, cfg.PauseComplaintRate*100), true
	}
	if account.BounceRate != nil && *account.BounceRate > cfg.PauseBounceRate {
		return fmt.Sprintf("bounce rate %.2f%% above %.2f%%", *account.BounceRate*100, cfg.PauseBounceRate*100), true
	}
	return "", false
}

func volume(account *models.SendingAccount) int {
	v := account.SentCount
	if observed := account.DeliveredCount + account.BounceCount; observed > v {
		v = observed
	}
	return v
}

func (s *deliveryService) enforceThresholds(ctx context.Context, account *models.SendingAccount) (bool, error) {
	reason, pause := ShouldPause(account, s.cfg)
	if !pause {
		return false, nil
	}

	if err := s.repos.SendingAccountRepository.SetStatus(ctx, account.ID, enum.AccountStatusPaused, reason); err != nil {
		return false, repository.ServiceError("pause account", "account", account.ID, err)
	}
	account.Status = enum.AccountStatusPaused
	account.StatusReason = reason
	s.deps.Metrics.ObserveAccountPaused()
	s.log.Warnf("account %s paused: %s", account.ID, reason)

	if s.deps.Publisher != nil {
		err := s.deps.Publisher.PublishFanoutEvent(ctx, account.ID, enum.ACCOUNT, dto.AccountPaused{
			AccountID:     account.ID,
			Address:       account.Address,
			Reason:        reason,
			BounceRate:    account.BounceRate,
			ComplaintRate: account.ComplaintRate,
		})
		if err != nil {
			s.log.Errorf("failed to publish account paused for %s: %v", account.ID, err)
		}
	}
	return true, nil
}

func (s *deliveryService) ListForEmail(ctx context.Context, emailID string) ([]models.DeliveryEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.ListForEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, emailID)

	if strings.TrimSpace(emailID) == "" {
		return nil, governor_errors.NewValidationError("emailId", "is required")
	}

	if _, err := s.repos.SentEmailRepository.GetByID(ctx, emailID); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("list delivery events", "email", emailID, err)
	}

	events, err := s.repos.DeliveryEventRepository.ListByEmailID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list delivery events", err)
	}
	return events, nil
}
