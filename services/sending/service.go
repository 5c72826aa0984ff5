// Package sending dispatches outbound mail through rotation, the content gate and a transport.
package sending

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

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
	outcomeSent      = "sent"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	outcomeExhausted = "exhausted"
	outcomeError     = "error"
)

type Dependencies struct {
	Rotation  interfaces.RotationService
	ABTests   interfaces.ABTestService
	Content   interfaces.ContentService
	Transport interfaces.TransportService
	Metrics   *metrics.Metrics
}

type dispatcher struct {
	log   logger.Logger
	repos *repository.Repositories
	cfg   *config.GovernorConfig
	deps  Dependencies
	clock func() time.Time
}

func NewDispatcher(log logger.Logger, repos *repository.Repositories, cfg *config.GovernorConfig, deps Dependencies) interfaces.SendingService {
	return &dispatcher{
		log:   log,
		repos: repos,
		cfg:   cfg,
		deps:  deps,
		clock: utils.Now,
	}
}

// Send reserves an account and hands the message to the transport. A transport
// failure is reported in the result with status failed; the reserved slot stays spent.
func (d *dispatcher) Send(ctx context.Context, request dto.SendRequest) (*dto.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingService.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("abTestId", request.ABTestID))

	recipient, err := validRecipient(request.To)
	if err != nil {
		return nil, err
	}
	message := dto.TransportMessage{
		FromName: request.FromName,
		To:       recipient,
		Subject:  request.Subject,
		HTML:     request.HTML,
		Text:     request.Text,
	}

	var variant *models.ABTestVariant
	if request.ABTestID != "" {
		// PrepareSend assigns the same variant for this recipient
		variant, err = d.deps.ABTests.AssignVariant(ctx, request.ABTestID, recipient)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		applyVariant(&message, variant)
	}
	if err := validMessage(message); err != nil {
		return nil, err
	}

	var analysis *dto.ContentAnalysisResult
	if !request.SkipContentCheck {
		analysis, err = d.gate(ctx, message)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	var (
		account *models.SendingAccount
		email   *models.SentEmail
	)
	if request.ABTestID != "" {
		plan, err := d.deps.ABTests.PrepareSend(ctx, request.ABTestID, recipient, request.ExcludeAccountIDs)
		if err != nil {
			d.observeReservationFailure(err)
			tracing.TraceErr(span, err)
			return nil, err
		}
		account, email = plan.Account, plan.Email
	} else {
		reserved, err := d.deps.Rotation.Select(ctx, dto.SelectRequest{ExcludeIDs: request.ExcludeAccountIDs})
		if err != nil {
			d.observeReservationFailure(err)
			tracing.TraceErr(span, err)
			return nil, err
		}
		account = reserved.Account
		email, err = d.register(ctx, account, message)
		if err != nil {
			d.deps.Metrics.ObserveSend(outcomeError)
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	tracing.TagAccount(span, account.ID)

	result := d.deliver(ctx, account, email, message)
	result.Content = analysis
	return result, nil
}

// TestSend delivers through a named account without a reservation. The content
// analysis is returned but does not gate the send.
func (d *dispatcher) TestSend(ctx context.Context, request dto.TestSendRequest) (*dto.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingService.TestSend")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, request.EmailAccountID)

	if strings.TrimSpace(request.EmailAccountID) == "" {
		return nil, governor_errors.NewValidationError("emailAccountId", "is required")
	}
	recipient, err := validRecipient(request.To)
	if err != nil {
		return nil, err
	}
	message := dto.TransportMessage{
		From:     request.From,
		FromName: request.FromName,
		To:       recipient,
		Subject:  request.Subject,
		HTML:     request.HTML,
	}
	if err := validMessage(message); err != nil {
		return nil, err
	}

	account, err := d.repos.SendingAccountRepository.GetByID(ctx, request.EmailAccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("load account", "account", request.EmailAccountID, err)
	}

	analysis, err := d.deps.Content.Check(ctx, dto.ContentInput{Subject: message.Subject, HTML: message.HTML})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	email, err := d.register(ctx, account, message)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	result := d.deliver(ctx, account, email, message)
	result.Content = analysis
	return result, nil
}

// gate rejects content rated at or below the configured rating.
func (d *dispatcher) gate(ctx context.Context, message dto.TransportMessage) (*dto.ContentAnalysisResult, error) {
	analysis, err := d.deps.Content.Check(ctx, dto.ContentInput{Subject: message.Subject, Body: message.Text, HTML: message.HTML})
	if err != nil {
		return nil, err
	}
	reject := enum.DeliverabilityRating(d.cfg.RejectContentRating)
	if analysis.DeliverabilityRating.AtLeastAsBadAs(reject) {
		d.deps.Metrics.ObserveSend(outcomeRejected)
		return analysis, governor_errors.NewValidationError("content",
			fmt.Sprintf("deliverability rating %s (spam risk %d) is not allowed", analysis.DeliverabilityRating, analysis.SpamRisk))
	}
	return analysis, nil
}

func (d *dispatcher) register(ctx context.Context, account *models.SendingAccount, message dto.TransportMessage) (*models.SentEmail, error) {
	email := &models.SentEmail{
		AccountID: account.ID,
		MessageID: utils.NormalizeMessageID(utils.GenerateMessageID(account.Domain, message.To)),
		Recipient: message.To,
		Subject:   message.Subject,
		Status:    enum.SentEmailQueued,
	}
	if err := d.repos.SentEmailRepository.Create(ctx, email); err != nil {
		return nil, repository.ServiceError("register email", "email", email.MessageID, err)
	}
	return email, nil
}

// deliver hands the message to the transport and records the outcome on the email.
func (d *dispatcher) deliver(ctx context.Context, account *models.SendingAccount, email *models.SentEmail, message dto.TransportMessage) *dto.SendResult {
	message.MessageID = email.MessageID
	result := &dto.SendResult{
		EmailID:   email.ID,
		MessageID: email.MessageID,
		AccountID: account.ID,
		From:      account.Address,
	}
	if message.From != "" {
		result.From = message.From
	}
	if email.VariantID != nil {
		result.VariantID = *email.VariantID
	}

	sent, err := d.deps.Transport.Send(ctx, account, message)
	if err != nil {
		d.log.Warnf("transport failed for email %s on account %s: %v", email.ID, account.ID, err)
		d.deps.Metrics.ObserveSend(outcomeFailed)
		if updateErr := d.repos.SentEmailRepository.UpdateStatus(ctx, email.ID, enum.SentEmailFailed, err.Error(), nil); updateErr != nil {
			d.log.Errorf("failed to mark email %s failed: %v", email.ID, updateErr)
		}
		result.Status = enum.SentEmailFailed
		result.Error = err.Error()
		return result
	}

	now := d.clock()
	if err := d.repos.SentEmailRepository.UpdateStatus(ctx, email.ID, enum.SentEmailSent, "", &now); err != nil {
		d.log.Errorf("failed to mark email %s sent: %v", email.ID, err)
	}
	d.deps.Metrics.ObserveSend(outcomeSent)
	result.Status = enum.SentEmailSent
	result.ProviderMessageID = sent.ProviderMessageID
	return result
}

func (d *dispatcher) observeReservationFailure(err error) {
	if governor_errors.IsExhaustion(err) {
		d.deps.Metrics.ObserveSend(outcomeExhausted)
		return
	}
	d.deps.Metrics.ObserveSend(outcomeError)
}

func applyVariant(message *dto.TransportMessage, variant *models.ABTestVariant) {
	if variant.SubjectLine != "" {
		message.Subject = variant.SubjectLine
	}
	if variant.FromName != "" {
		message.FromName = variant.FromName
	}
	if variant.Content != "" {
		message.HTML = variant.Content
	}
}

func validRecipient(to string) (string, error) {
	recipient := utils.NormalizeEmail(to)
	if recipient == "" {
		return "", governor_errors.NewValidationError("to", "is required")
	}
	if !mailvalidate.ValidateEmailSyntax(recipient).IsValid {
		return "", governor_errors.NewValidationError("to", "is not a valid email address")
	}
	return recipient, nil
}

func validMessage(message dto.TransportMessage) error {
	if strings.TrimSpace(message.Subject) == "" {
		return governor_errors.NewValidationError("subject", "is required")
	}
	if strings.TrimSpace(message.HTML) == "" && strings.TrimSpace(message.Text) == "" {
		return governor_errors.NewValidationError("html", "either html or text content is required")
	}
	return nil
}
