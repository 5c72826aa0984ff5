// Package repositorytest provides in-memory repositories with the same
// contracts as the gorm ones, for service tests.
package repositorytest

import (
	"sort"
	"sync"
	"time"

	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/utils"
)

type Store struct {
	mu sync.Mutex

	accounts     map[string]*models.SendingAccount
	domains      map[string]*models.DomainRecord
	dmarcReports []models.DMARCReport
	reputations  []models.DomainReputation
	events       []models.DeliveryEvent
	emails       map[string]*models.SentEmail
	spamWords    map[string]*models.SpamWord
	tests        map[string]*models.ABTest
	variants     map[string]*models.ABTestVariant
	alerts       map[string]*models.ReputationAlert

	failWith error
	clock    func() time.Time
}

// New returns an empty store and repositories backed by it.
func New() (*Store, *repository.Repositories) {
	s := &Store{
		accounts:  map[string]*models.SendingAccount{},
		domains:   map[string]*models.DomainRecord{},
		emails:    map[string]*models.SentEmail{},
		spamWords: map[string]*models.SpamWord{},
		tests:     map[string]*models.ABTest{},
		variants:  map[string]*models.ABTestVariant{},
		alerts:    map[string]*models.ReputationAlert{},
		clock:     utils.Now,
	}
	return s, &repository.Repositories{
		SendingAccountRepository:  &accountRepo{s},
		DomainRecordRepository:    &domainRepo{s},
		DeliveryEventRepository:   &eventRepo{s},
		SentEmailRepository:       &emailRepo{s},
		SpamWordRepository:        &spamWordRepo{s},
		ABTestRepository:          &abTestRepo{s},
		ReputationAlertRepository: &alertRepo{s},
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// PutAccount inserts or replaces an account as is, bypassing validation.
func (s *Store) PutAccount(account models.SendingAccount) *models.SendingAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = utils.GenerateNanoIDWithPrefix("acc", 16)
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.clock()
	}
	s.accounts[account.ID] = &account
	out := account
	return &out
}

func (s *Store) Account(id string) *models.SendingAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	out := *a
	return &out
}

func (s *Store) PutSentEmail(email models.SentEmail) *models.SentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email.ID == "" {
		email.ID = utils.GenerateNanoIDWithPrefix("email", 16)
	}
	email.MessageID = utils.NormalizeMessageID(email.MessageID)
	s.emails[email.ID] = &email
	out := email
	return &out
}

func (s *Store) SentEmail(id string) *models.SentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok {
		return nil
	}
	out := *e
	return &out
}

func (s *Store) Variant(id string) *models.ABTestVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	if !ok {
		return nil
	}
	out := *v
	return &out
}

func (s *Store) Events() []models.DeliveryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DeliveryEvent(nil), s.events...)
}

func (s *Store) Alerts() []models.ReputationAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReputationAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstDetectedAt.Before(out[j].FirstDetectedAt) })
	return out
}

func (s *Store) Reputations() []models.DomainReputation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DomainReputation(nil), s.reputations...)
}

// lock takes the store lock and reports the injected failure, if any.
// Callers must unlock even on error.
func (s *Store) lock() error {
	s.mu.Lock()
	return s.failWith
}
