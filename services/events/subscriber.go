package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

type SubscriberConfig struct {
	MaxRetries          int
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func DefaultSubscriberConfig() *SubscriberConfig {
	return &SubscriberConfig{
		MaxRetries:          5,
		ReconnectBackoff:    DefaultReconnectBackoff,
		MaxReconnectBackoff: DefaultMaxReconnectBackoff,
	}
}

type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	logger          logger.Logger
	config          SubscriberConfig
	listeners       map[string]interfaces.EventListener
	listenerMutex   sync.RWMutex
	closed          chan struct{}
}

func NewRabbitMQSubscriber(rabbitmqURL string, logger logger.Logger, config *SubscriberConfig) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = DefaultSubscriberConfig()
	}

	subscriber := &RabbitMQSubscriber{
		url:       rabbitmqURL,
		logger:    logger,
		config:    *config,
		listeners: make(map[string]interfaces.EventListener),
		closed:    make(chan struct{}),
	}

	if err := subscriber.connect(); err != nil {
		return nil, err
	}

	return subscriber, nil
}

func (r *RabbitMQSubscriber) RegisterListener(listener interfaces.EventListener) {
	r.listenerMutex.Lock()
	defer r.listenerMutex.Unlock()

	eventType := listener.GetEventType()
	r.listeners[eventType] = listener
	r.logger.Infof("Registered listener for event type: %s on queue: %s", eventType, listener.GetQueueName())
}

func (r *RabbitMQSubscriber) ListenQueue(queueName string) error {
	return r.listenQueueWithExclusive(queueName, false)
}

// ListenQueueExclusive allows a single consumer across all instances.
func (r *RabbitMQSubscriber) ListenQueueExclusive(queueName string) error {
	return r.listenQueueWithExclusive(queueName, true)
}

func (r *RabbitMQSubscriber) listenQueueWithExclusive(queueName string, exclusive bool) error {
	go func() {
		b := &backoff.Backoff{Min: r.config.ReconnectBackoff, Max: r.config.MaxReconnectBackoff, Factor: 2}
		for {
			if r.isClosed() {
				return
			}
			if err := r.consume(queueName, exclusive); err != nil {
				delay := b.Duration()
				if exclusive && strings.Contains(err.Error(), "ACCESS_REFUSED") && strings.Contains(err.Error(), "exclusive") {
					r.logger.Warnf("Exclusive consumer conflict for queue %s, retrying in %v", queueName, delay)
				} else {
					r.logger.Errorf("Consumer on queue %s stopped: %v, retrying in %v", queueName, err, delay)
				}
				select {
				case <-r.closed:
					return
				case <-time.After(delay):
				}
				continue
			}
			b.Reset()
		}
	}()

	return nil
}

// consume blocks until the delivery channel closes.
func (r *RabbitMQSubscriber) consume(queueName string, exclusive bool) error {
	r.connectionMutex.Lock()
	connection := r.connection
	r.connectionMutex.Unlock()
	if connection == nil || connection.IsClosed() {
		return errors.New("connection is closed")
	}

	channel, err := connection.Channel()
	if err != nil {
		return errors.Wrapf(err, "failed to open channel for queue %s", queueName)
	}
	defer channel.Close()

	msgs, err := channel.Consume(
		queueName, // queue
		"",        // consumer tag
		false,     // auto-ack
		exclusive, // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return errors.Wrapf(err, "failed to register consumer on queue %s", queueName)
	}

	r.logger.Infof("Listening for messages on queue %s", queueName)
	for d := range msgs {
		r.handleMessage(d, queueName)
	}

	if r.isClosed() {
		return nil
	}
	return errors.Errorf("delivery channel for queue %s closed", queueName)
}

func (r *RabbitMQSubscriber) handleMessage(d amqp091.Delivery, queueName string) {
	defer tracing.RecoverAndLogToJaeger(r.logger)

	err := r.processMessage(d, queueName)
	if err != nil {
		r.logger.Errorf("Failed to process message on queue %s: %v", queueName, err)
		r.retryAckNack(d, false)
	} else {
		r.retryAckNack(d, true)
	}
}

func (r *RabbitMQSubscriber) processMessage(d amqp091.Delivery, queueName string) error {
	var event dto.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return r.dispatch(context.Background(), event, queueName)
}

func (r *RabbitMQSubscriber) dispatch(ctx context.Context, event dto.Event, queueName string) error {
	if !event.Metadata.Supported() {
		r.logger.Warnf("Skipping %s event %s with envelope version %d on queue %s",
			event.Event.EventType, event.Event.Id, event.Metadata.Version, queueName)
		return nil
	}

	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{
		AppSource: event.Metadata.AppSource,
		Operator:  event.Metadata.Operator,
	})

	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.ProcessMessage", event.Metadata.UberTraceId)
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	span.LogKV("event_type", event.Event.EventType)
	span.LogKV("queue_name", queueName)
	if at := event.Metadata.OccurredAt(); !at.IsZero() {
		span.LogKV("queue_lag_ms", utils.Now().Sub(at).Milliseconds())
	}

	r.listenerMutex.RLock()
	listener, exists := r.listeners[event.Event.EventType]
	r.listenerMutex.RUnlock()

	if !exists {
		r.logger.Infof("No listener found for event type: %s on queue: %s", event.Event.EventType, queueName)
		return nil
	}

	if listener.GetQueueName() != queueName {
		r.logger.Warnf("Event type %s received on wrong queue. Expected %s, got %s",
			event.Event.EventType, listener.GetQueueName(), queueName)
		return nil
	}

	err := listener.Handle(ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	connection, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}
	r.connection = connection

	go r.handleReconnection(connection)

	return nil
}

func (r *RabbitMQSubscriber) handleReconnection(connection *amqp091.Connection) {
	notifyClose := connection.NotifyClose(make(chan *amqp091.Error, 1))
	select {
	case <-r.closed:
		return
	case err := <-notifyClose:
		if r.isClosed() {
			return
		}
		r.logger.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", err)
	}

	b := &backoff.Backoff{Min: r.config.ReconnectBackoff, Max: r.config.MaxReconnectBackoff, Factor: 2}
	for {
		err := r.connect()
		if err == nil {
			return
		}
		delay := b.Duration()
		r.logger.Errorf("Failed to reconnect: %v, retrying in %v", err, delay)
		select {
		case <-r.closed:
			return
		case <-time.After(delay):
		}
	}
}

func (r *RabbitMQSubscriber) retryAckNack(d amqp091.Delivery, ack bool) {
	retryDelay := 100 * time.Millisecond

	for i := 0; i < r.config.MaxRetries; i++ {
		var err error
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}

		if err == nil {
			return
		}

		time.Sleep(retryDelay)
	}

	r.logger.Errorf("Failed to %s message after %d attempts",
		map[bool]string{true: "acknowledge", false: "negative acknowledge"}[ack],
		r.config.MaxRetries)
}

func (r *RabbitMQSubscriber) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *RabbitMQSubscriber) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.isClosed() {
		return nil
	}
	close(r.closed)

	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}
