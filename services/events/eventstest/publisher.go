// Package eventstest records published governor events for service tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
)

type Published struct {
	EntityID   string
	EntityType enum.EntityType
	Message    interface{}
}

type Publisher struct {
	mu       sync.Mutex
	fanout   []Published
	delivery []dto.DeliveryEventReceived
	err      error
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// FailWith makes every publish return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *Publisher) PublishFanoutEvent(_ context.Context, entityId string, entityType enum.EntityType, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.fanout = append(p.fanout, Published{EntityID: entityId, EntityType: entityType, Message: message})
	return nil
}

func (p *Publisher) PublishDeliveryEvent(_ context.Context, message dto.DeliveryEventReceived) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.delivery = append(p.delivery, message)
	return nil
}

func (p *Publisher) Close() error {
	return nil
}

func (p *Publisher) Fanout() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.fanout...)
}

// Of returns the fanout payloads of type T in publish order.
func Of[T any](p *Publisher) []T {
	var out []T
	for _, published := range p.Fanout() {
		if m, ok := published.Message.(T); ok {
			out = append(out, m)
		}
	}
	return out
}
