package transport

import (
	"context"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

var ErrNoTransport = errors.New("no transport configured")

type rawSender interface {
	configured() bool
	send(ctx context.Context, from string, recipients []string, raw []byte) error
}

type apiSender interface {
	configured() bool
	send(ctx context.Context, message dto.TransportMessage) (string, error)
}

type transportService struct {
	log      logger.Logger
	smtp     rawSender
	sendgrid apiSender
	clock    func() time.Time
}

func NewTransportService(log logger.Logger, cfg *config.TransportConfig) interfaces.TransportService {
	return &transportService{
		log:      log,
		smtp:     newSMTPSender(cfg),
		sendgrid: &sendgridSender{apiKey: cfg.SendgridKey},
		clock:    utils.Now,
	}
}

func (s *transportService) Send(ctx context.Context, account *models.SendingAccount, message dto.TransportMessage) (*dto.TransportResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TransportService.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	message, err := s.prepare(account, message)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(tracingLog.String("messageId", message.MessageID), tracingLog.String("provider", account.Provider.String()))

	useSendgrid := s.sendgrid.configured() && (account.Provider == enum.EmailSendgrid || !s.smtp.configured())
	switch {
	case useSendgrid:
		providerID, err := s.sendgrid.send(ctx, message)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return &dto.TransportResult{ProviderMessageID: providerID}, nil
	case s.smtp.configured():
		raw, err := buildMessage(message, s.clock())
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if err := s.smtp.send(ctx, message.From, []string{message.To}, raw); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return &dto.TransportResult{ProviderMessageID: message.MessageID}, nil
	}
	tracing.TraceErr(span, ErrNoTransport)
	return nil, ErrNoTransport
}

// prepare fills defaults from the account and rejects messages no transport could deliver.
func (s *transportService) prepare(account *models.SendingAccount, message dto.TransportMessage) (dto.TransportMessage, error) {
	if message.From == "" {
		message.From = account.Address
	}
	if message.FromName == "" {
		message.FromName = account.FromName
	}
	from := mailvalidate.ValidateEmailSyntax(message.From)
	if !from.IsValid {
		return message, governor_errors.NewValidationError("from", "is not a valid email address")
	}
	if !strings.EqualFold(from.Domain, account.Domain) {
		return message, governor_errors.NewValidationError("from", "domain does not match the sending account domain")
	}
	message.To = utils.NormalizeEmail(message.To)
	if !mailvalidate.ValidateEmailSyntax(message.To).IsValid {
		return message, governor_errors.NewValidationError("to", "is not a valid email address")
	}
	if strings.TrimSpace(message.Subject) == "" {
		return message, governor_errors.NewValidationError("subject", "is required")
	}
	if message.HTML == "" && message.Text == "" {
		return message, governor_errors.NewValidationError("html", "either html or text content is required")
	}
	message.MessageID = utils.NormalizeMessageID(message.MessageID)
	if message.MessageID == "" {
		message.MessageID = utils.NormalizeMessageID(utils.GenerateMessageID(account.Domain, ""))
	}
	return message, nil
}
