package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/utils"
)

func testLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	log.InitLogger()
	return log
}

type recordingListener struct {
	BaseEventListener
	handled []dto.DeliveryEventReceived
	err     error
}

func (l *recordingListener) Handle(ctx context.Context, baseEvent any) error {
	event, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		return err
	}
	data, err := DecodeEventData[dto.DeliveryEventReceived](ctx, event)
	if err != nil {
		return err
	}
	l.handled = append(l.handled, data)
	return l.err
}

func TestGetEventType(t *testing.T) {
	assert.Equal(t, "AccountPaused", GetEventType[dto.AccountPaused]())
	assert.Equal(t, "AccountPaused", GetEventType[*dto.AccountPaused]())
	assert.Equal(t, "ABTestCompleted", GetEventTypeOf(&dto.ABTestCompleted{}))
	assert.Equal(t, "", GetEventTypeOf(nil))
}

func TestNewEvent_CarriesContextMetadata(t *testing.T) {
	ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{Operator: "ops@example.com"})
	span := opentracing.StartSpan("test")
	defer span.Finish()

	event := NewEvent(ctx, span, "acc_1", enum.ACCOUNT, dto.AccountPaused{AccountID: "acc_1", Reason: "bounce rate"})

	assert.Equal(t, "AccountPaused", event.Event.EventType)
	assert.Equal(t, "acc_1", event.Event.EntityId)
	assert.Equal(t, enum.ACCOUNT, event.Event.EntityType)
	assert.Equal(t, "ops@example.com", event.Metadata.Operator)
	assert.Equal(t, appSource, event.Metadata.AppSource)
	assert.Equal(t, dto.EnvelopeVersion, event.Metadata.Version)
	assert.False(t, event.Metadata.OccurredAt().IsZero())
	assert.NotEmpty(t, event.Event.Id)
}

// Events are decoded from the wire, so the payload arrives as a generic map.
func wireEvent(t *testing.T, entityID string, message any) dto.Event {
	span := opentracing.StartSpan("test")
	defer span.Finish()
	raw, err := json.Marshal(NewEvent(context.Background(), span, entityID, enum.DELIVERY_EVENT, message))
	require.NoError(t, err)
	var event dto.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestSubscriberDispatch_RoutesToListener(t *testing.T) {
	log := testLogger()
	listener := &recordingListener{BaseEventListener: NewBaseEventListener(log, GetEventType[dto.DeliveryEventReceived](), QueueDeliveryEvents)}
	subscriber := &RabbitMQSubscriber{logger: log, listeners: map[string]interfaces.EventListener{}}
	subscriber.RegisterListener(listener)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := wireEvent(t, "<m1@x>", dto.DeliveryEventReceived{MessageID: "<m1@x>", Event: "reply", Timestamp: ts})

	require.NoError(t, subscriber.dispatch(context.Background(), event, QueueDeliveryEvents))
	require.Len(t, listener.handled, 1)
	assert.Equal(t, "reply", listener.handled[0].Event)
	assert.True(t, ts.Equal(listener.handled[0].Timestamp))
}

func TestSubscriberDispatch_IgnoresWrongQueueAndUnknownTypes(t *testing.T) {
	log := testLogger()
	listener := &recordingListener{BaseEventListener: NewBaseEventListener(log, GetEventType[dto.DeliveryEventReceived](), QueueDeliveryEvents)}
	subscriber := &RabbitMQSubscriber{logger: log, listeners: map[string]interfaces.EventListener{}}
	subscriber.RegisterListener(listener)

	event := wireEvent(t, "<m1@x>", dto.DeliveryEventReceived{MessageID: "<m1@x>", Event: "open"})
	require.NoError(t, subscriber.dispatch(context.Background(), event, QueueGovernorEvents))

	other := wireEvent(t, "acc_1", dto.AccountPaused{AccountID: "acc_1"})
	require.NoError(t, subscriber.dispatch(context.Background(), other, QueueDeliveryEvents))

	assert.Empty(t, listener.handled)
}

func TestValidateBaseEvent(t *testing.T) {
	base := NewBaseEventListener(testLogger(), "DeliveryEventReceived", QueueDeliveryEvents)

	_, err := base.ValidateBaseEvent(context.Background(), "not an event")
	assert.Error(t, err)

	_, err = base.ValidateBaseEvent(context.Background(), dto.Event{Event: dto.EventDetails{EntityId: "x", EventType: "DeliveryEventReceived"}})
	assert.Error(t, err, "nil data")

	_, err = base.ValidateBaseEvent(context.Background(), dto.Event{Event: dto.EventDetails{EntityId: "x", EventType: "AccountPaused", Data: map[string]any{}}})
	assert.Error(t, err, "wrong type")

	event, err := base.ValidateBaseEvent(context.Background(), dto.Event{Event: dto.EventDetails{EntityId: "x", EventType: "DeliveryEventReceived", Data: map[string]any{}}})
	require.NoError(t, err)
	assert.Equal(t, "x", event.Event.EntityId)
}

func TestNoopPublisher(t *testing.T) {
	publisher := NewNoopPublisher(testLogger())
	assert.NoError(t, publisher.PublishFanoutEvent(context.Background(), "acc_1", enum.ACCOUNT, dto.AccountPaused{}))
	assert.NoError(t, publisher.PublishDeliveryEvent(context.Background(), dto.DeliveryEventReceived{}))
	assert.NoError(t, publisher.Close())
}

func TestDLQArgs(t *testing.T) {
	args := dlqArgs(time.Hour)
	assert.Equal(t, ExchangeDeadLetter, args["x-dead-letter-exchange"])
	assert.Equal(t, int64(3600000), args["x-message-ttl"])
}

func TestSubscriberDispatch_SkipsNewerEnvelopes(t *testing.T) {
	log := testLogger()
	listener := &recordingListener{BaseEventListener: NewBaseEventListener(log, GetEventType[dto.DeliveryEventReceived](), QueueDeliveryEvents)}
	subscriber := &RabbitMQSubscriber{logger: log, listeners: map[string]interfaces.EventListener{}}
	subscriber.RegisterListener(listener)

	event := wireEvent(t, "<m1@x>", dto.DeliveryEventReceived{MessageID: "<m1@x>", Event: "open"})
	event.Metadata.Version = dto.EnvelopeVersion + 1

	require.NoError(t, subscriber.dispatch(context.Background(), event, QueueDeliveryEvents))
	assert.Empty(t, listener.handled)
}
