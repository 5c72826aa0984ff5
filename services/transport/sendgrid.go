package transport

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type sendgridSender struct {
	apiKey string
}

func (s *sendgridSender) configured() bool {
	return s.apiKey != ""
}

func newSendgridMail(message dto.TransportMessage) *mail.SGMailV3 {
	m := mail.NewSingleEmail(
		mail.NewEmail(message.FromName, message.From),
		message.Subject,
		mail.NewEmail("", message.To),
		message.Text,
		message.HTML,
	)
	m.SetHeader("Message-ID", "<"+message.MessageID+">")
	return m
}

// send returns SendGrid's own message id, which its event webhook reports as sg_message_id.
func (s *sendgridSender) send(ctx context.Context, message dto.TransportMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendgridSender.send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, newSendgridMail(message))
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		tracing.TraceErr(span, err)
		return "", err
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid returned error status %d: %s", response.StatusCode, response.Body)
		tracing.TraceErr(span, err)
		return "", err
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
