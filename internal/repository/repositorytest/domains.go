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

type domainRepo struct{ s *Store }

func (r *domainRepo) GetByDomain(_ context.Context, domain string) (*models.DomainRecord, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	d, ok := r.s.domains[domain]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (r *domainRepo) GetOrCreate(_ context.Context, domain string) (*models.DomainRecord, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	if d, ok := r.s.domains[domain]; ok {
		out := *d
		return &out, nil
	}
	now := r.s.clock()
	d := &models.DomainRecord{
		ID:          utils.GenerateNanoIDWithPrefix("dom", 16),
		Domain:      domain,
		SpfStatus:   enum.VerificationNotChecked,
		DkimStatus:  enum.VerificationNotChecked,
		DmarcStatus: enum.VerificationNotChecked,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.s.domains[domain] = d
	out := *d
	return &out, nil
}

func (r *domainRepo) Save(_ context.Context, record *models.DomainRecord) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	stored := *record
	r.s.domains[record.Domain] = &stored
	return nil
}

func (r *domainRepo) List(_ context.Context) ([]models.DomainRecord, error) {
	return r.list(func(*models.DomainRecord) bool { return true })
}

func (r *domainRepo) ListCheckedBefore(_ context.Context, before time.Time) ([]models.DomainRecord, error) {
	return r.list(func(d *models.DomainRecord) bool {
		return d.LastChecked == nil || d.LastChecked.Before(before)
	})
}

func (r *domainRepo) list(keep func(*models.DomainRecord) bool) ([]models.DomainRecord, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.DomainRecord{}
	for _, d := range r.s.domains {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (r *domainRepo) CreateDMARCReport(_ context.Context, report *models.DMARCReport) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	if report.ID == "" {
		report.ID = utils.GenerateNanoIDWithPrefix("dmarc", 16)
	}
	report.CreatedAt = r.s.clock()
	r.s.dmarcReports = append(r.s.dmarcReports, *report)
	return nil
}

func (r *domainRepo) ListDMARCReports(_ context.Context, domain string, limit int) ([]models.DMARCReport, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.DMARCReport{}
	for i := len(r.s.dmarcReports) - 1; i >= 0; i-- {
		if domain == "" || r.s.dmarcReports[i].Domain == domain {
			out = append(out, r.s.dmarcReports[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *domainRepo) CreateReputation(_ context.Context, reputation *models.DomainReputation) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	if reputation.ID == "" {
		reputation.ID = utils.GenerateNanoIDWithPrefix("rep", 16)
	}
	reputation.CreatedAt = r.s.clock()
	r.s.reputations = append(r.s.reputations, *reputation)
	return nil
}

func (r *domainRepo) LatestReputation(_ context.Context, domain string) (*models.DomainReputation, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	for i := len(r.s.reputations) - 1; i >= 0; i-- {
		if r.s.reputations[i].Domain == domain {
			out := r.s.reputations[i]
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}
