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

type accountRepo struct{ s *Store }

func (r *accountRepo) Create(_ context.Context, account *models.SendingAccount) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	for _, a := range r.s.accounts {
		if a.Address == account.Address {
			return repository.ErrAlreadyExists
		}
	}
	if account.ID == "" {
		account.ID = utils.GenerateNanoIDWithPrefix("acc", 16)
	}
	now := r.s.clock()
	account.CreatedAt, account.UpdatedAt = now, now
	stored := *account
	r.s.accounts[account.ID] = &stored
	return nil
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*models.SendingAccount, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *accountRepo) GetByAddress(_ context.Context, address string) (*models.SendingAccount, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	for _, a := range r.s.accounts {
		if a.Address == address {
			out := *a
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *accountRepo) filter(keep func(*models.SendingAccount) bool) ([]models.SendingAccount, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.SendingAccount{}
	for _, a := range r.s.accounts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *accountRepo) List(_ context.Context) ([]models.SendingAccount, error) {
	return r.filter(func(*models.SendingAccount) bool { return true })
}

func (r *accountRepo) ListActive(_ context.Context) ([]models.SendingAccount, error) {
	return r.filter(func(a *models.SendingAccount) bool { return a.Status == enum.AccountStatusActive })
}

func (r *accountRepo) ListWarming(_ context.Context) ([]models.SendingAccount, error) {
	return r.filter(func(a *models.SendingAccount) bool { return a.WarmupState == enum.WarmupWarming })
}

func (r *accountRepo) ListByDomain(_ context.Context, domain string) ([]models.SendingAccount, error) {
	return r.filter(func(a *models.SendingAccount) bool { return a.Domain == domain })
}

func (r *accountRepo) ListDomains(_ context.Context) ([]string, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, a := range r.s.accounts {
		if !seen[a.Domain] {
			seen[a.Domain] = true
			out = append(out, a.Domain)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *accountRepo) update(id string, apply func(*models.SendingAccount)) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	apply(a)
	a.UpdatedAt = r.s.clock()
	return nil
}

func (r *accountRepo) SetStatus(_ context.Context, id string, status enum.AccountStatus, reason string) error {
	return r.update(id, func(a *models.SendingAccount) {
		a.Status = status
		a.StatusReason = reason
	})
}

func (r *accountRepo) UpdateWarmup(_ context.Context, id string, f repository.WarmupFields) error {
	return r.update(id, func(a *models.SendingAccount) {
		a.WarmupState = f.State
		a.WarmupInProgress = f.InProgress
		a.WarmupStartedAt = f.StartedAt
		a.WarmupCompletedAt = f.CompletedAt
		a.WarmupStartVolume = f.StartVolume
		a.WarmupDailyIncrement = f.DailyIncrement
		a.WarmupMaxVolume = f.MaxVolume
		a.DailyLimit = f.DailyLimit
		a.HourlyLimit = f.HourlyLimit
	})
}

func (r *accountRepo) UpdateHealth(_ context.Context, id string, score int, status enum.HealthStatus, at time.Time) error {
	return r.update(id, func(a *models.SendingAccount) {
		a.HealthScore = score
		a.HealthStatus = status
		a.HealthUpdatedAt = &at
	})
}

func (r *accountRepo) UpdateAuthFlags(_ context.Context, domain string, spf, dkim, dmarc bool) (int64, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	var n int64
	for _, a := range r.s.accounts {
		if a.Domain != domain {
			continue
		}
		a.SpfOk, a.DkimOk, a.DmarcOk = spf, dkim, dmarc
		a.DomainAuthenticated = spf && dkim && dmarc
		n++
	}
	return n, nil
}

func (r *accountRepo) Reserve(_ context.Context, res repository.Reservation) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	a, ok := r.s.accounts[res.AccountID]
	if !ok || a.Status != enum.AccountStatusActive || !sameInstant(a.LastUsedAt, res.ExpectedLastUsedAt) {
		return repository.ErrConflict
	}
	usedAt := res.UsedAt
	a.LastUsedAt = &usedAt
	a.LastRotationUsedAt = &usedAt
	a.UsageDay, a.SentToday = res.UsageDay, res.SentToday
	a.UsageHour, a.SentThisHour = res.UsageHour, res.SentThisHour
	a.SentCount++
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
