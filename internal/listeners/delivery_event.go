package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/services/events"
)

// DeliveryEventListener feeds delivery events published on the broker into
// the same ingestion path as provider webhooks.
type DeliveryEventListener struct {
	events.BaseEventListener
	delivery interfaces.DeliveryService
}

func NewDeliveryEventListener(logger logger.Logger, delivery interfaces.DeliveryService) interfaces.EventListener {
	return &DeliveryEventListener{
		BaseEventListener: events.NewBaseEventListener(
			logger,
			events.GetEventType[dto.DeliveryEventReceived](),
			events.QueueDeliveryEvents,
		),
		delivery: delivery,
	}
}

func (l *DeliveryEventListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryEventListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", baseEvent)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	received, err := events.DecodeEventData[dto.DeliveryEventReceived](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	result, err := l.delivery.Record(ctx, dto.IngestEvent{
		MessageID: received.MessageID,
		EventType: received.Event,
		Recipient: received.Recipient,
		Timestamp: received.Timestamp,
		Metadata:  received.Metadata,
		Source:    enum.EventSourceInternal,
	})
	if err != nil {
		// malformed payloads never succeed on redelivery
		if governor_errors.IsValidation(err) {
			l.Logger().Warnf("dropping invalid delivery event for %s: %v", received.MessageID, err)
			return nil
		}
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.Bool("duplicate", result.Duplicate), tracingLog.Bool("accountPaused", result.AccountPaused))
	return nil
}
