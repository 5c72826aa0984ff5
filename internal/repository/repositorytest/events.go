package repositorytest

import (
	"context"
	"sort"
	"time"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/utils"
)

type eventRepo struct{ s *Store }

// Apply mirrors the transactional gorm version: everything or nothing under one lock.
func (r *eventRepo) Apply(_ context.Context, event *models.DeliveryEvent) (*repository.ApplyResult, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}

	for i := range r.s.events {
		existing := r.s.events[i]
		if existing.MessageID == event.MessageID && existing.EventType == event.EventType {
			return &repository.ApplyResult{Duplicate: true, Event: &existing}, nil
		}
	}

	account, ok := r.s.accounts[event.AccountID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	if event.ID == "" {
		event.ID = utils.GenerateNanoIDWithPrefix("evt", 16)
	}
	event.CreatedAt = r.s.clock()

	bumpAccount(account, event.EventType)
	account.DeriveRates()

	if event.EmailID != nil {
		if email, ok := r.s.emails[*event.EmailID]; ok {
			bumpEmail(email, event.EventType, event.Timestamp)
		}
	}

	event.Processed = true
	r.s.events = append(r.s.events, *event)

	accountCopy := *account
	eventCopy := *event
	return &repository.ApplyResult{Event: &eventCopy, Account: &accountCopy}, nil
}

func (r *eventRepo) GetByMessageAndType(_ context.Context, messageID string, eventType string) (*models.DeliveryEvent, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	for _, e := range r.s.events {
		if e.MessageID == messageID && string(e.EventType) == eventType {
			out := e
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *eventRepo) ListByEmailID(_ context.Context, emailID string) ([]models.DeliveryEvent, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.DeliveryEvent{}
	for _, e := range r.s.events {
		if e.EmailID != nil && *e.EmailID == emailID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func bumpAccount(a *models.SendingAccount, t enum.DeliveryEventType) {
	switch t {
	case enum.EventDelivered:
		a.DeliveredCount++
	case enum.EventBounce:
		a.BounceCount++
	case enum.EventComplaint:
		a.ComplaintCount++
	case enum.EventUnsubscribe:
		a.UnsubscribeCount++
	case enum.EventOpen:
		a.OpenCount++
	case enum.EventClick:
		a.ClickCount++
	case enum.EventReply:
		a.ReplyCount++
	}
}

func bumpEmail(e *models.SentEmail, t enum.DeliveryEventType, at time.Time) {
	switch t {
	case enum.EventDelivered:
		e.DeliveredCount++
	case enum.EventBounce:
		e.BounceCount++
	case enum.EventComplaint:
		e.ComplaintCount++
	case enum.EventUnsubscribe:
		e.UnsubscribeCount++
	case enum.EventOpen:
		e.OpenCount++
	case enum.EventClick:
		e.ClickCount++
	case enum.EventReply:
		e.ReplyCount++
	}
	if e.FirstEventAt == nil || at.Before(*e.FirstEventAt) {
		first := at
		e.FirstEventAt = &first
	}
	if e.LastEventAt == nil || at.After(*e.LastEventAt) {
		last := at
		e.LastEventAt = &last
	}
}

type emailRepo struct{ s *Store }

func (r *emailRepo) Create(_ context.Context, email *models.SentEmail) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	email.MessageID = utils.NormalizeMessageID(email.MessageID)
	for _, e := range r.s.emails {
		if e.MessageID == email.MessageID {
			return repository.ErrAlreadyExists
		}
	}
	if email.ID == "" {
		email.ID = utils.GenerateNanoIDWithPrefix("email", 16)
	}
	email.CreatedAt = r.s.clock()
	stored := *email
	r.s.emails[email.ID] = &stored
	return nil
}

func (r *emailRepo) GetByID(_ context.Context, id string) (*models.SentEmail, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	e, ok := r.s.emails[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (r *emailRepo) GetByMessageID(_ context.Context, messageID string) (*models.SentEmail, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	messageID = utils.NormalizeMessageID(messageID)
	for _, e := range r.s.emails {
		if e.MessageID == messageID {
			out := *e
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *emailRepo) UpdateStatus(_ context.Context, id string, status enum.SentEmailStatus, errMsg string, sentAt *time.Time) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	e, ok := r.s.emails[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status, e.Error, e.SentAt = status, errMsg, sentAt
	return nil
}
