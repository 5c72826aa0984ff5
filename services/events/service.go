package events

import (
	"context"
	"fmt"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/logger"
)

type EventsService struct {
	Publisher  interfaces.EventPublisher
	Subscriber interfaces.EventSubscriber
}

// NewEventsService connects to RabbitMQ. Without a URL the governor runs with
// a publisher that only logs and no subscriber.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig, subscriberConfig *SubscriberConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, governor events will not be published")
		return &EventsService{Publisher: NewNoopPublisher(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	subscriber, err := NewRabbitMQSubscriber(rabbitmqURL, log, subscriberConfig)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	return &EventsService{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Subscriber != nil {
		if err := s.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}

type noopPublisher struct {
	log logger.Logger
}

func NewNoopPublisher(log logger.Logger) interfaces.EventPublisher {
	return &noopPublisher{log: log}
}

func (p *noopPublisher) PublishFanoutEvent(_ context.Context, entityId string, entityType enum.EntityType, message interface{}) error {
	p.log.Debugf("event %s for %s %s not published", GetEventTypeOf(message), entityType, entityId)
	return nil
}

func (p *noopPublisher) PublishDeliveryEvent(_ context.Context, message dto.DeliveryEventReceived) error {
	p.log.Debugf("delivery event %s for %s not published", message.Event, message.MessageID)
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
