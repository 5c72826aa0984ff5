package repositorytest

import (
	"context"
	"sort"
	"time"

	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/utils"
)

type alertRepo struct{ s *Store }

func (r *alertRepo) Upsert(_ context.Context, alert *models.ReputationAlert) (*models.ReputationAlert, bool, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, false, err
	}
	now := r.s.clock()
	if alert.LastDetectedAt.IsZero() {
		alert.LastDetectedAt = now
	}
	for _, existing := range r.s.alerts {
		if existing.AccountID == alert.AccountID && existing.AlertType == alert.AlertType && !existing.IsResolved {
			existing.Severity = alert.Severity
			existing.DetectedValue = alert.DetectedValue
			existing.Threshold = alert.Threshold
			existing.Message = alert.Message
			existing.Details = alert.Details
			existing.LastDetectedAt = alert.LastDetectedAt
			existing.OccurrenceCount++
			existing.UpdatedAt = now
			out := *existing
			return &out, false, nil
		}
	}
	stored := *alert
	if stored.ID == "" {
		stored.ID = utils.GenerateNanoIDWithPrefix("alert", 16)
	}
	stored.OccurrenceCount = 1
	stored.IsResolved = false
	stored.FirstDetectedAt = alert.LastDetectedAt
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.s.alerts[stored.ID] = &stored
	out := stored
	return &out, true, nil
}

func (r *alertRepo) GetByID(_ context.Context, id string) (*models.ReputationAlert, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *alertRepo) List(_ context.Context, filter repository.AlertFilter) ([]models.ReputationAlert, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.ReputationAlert{}
	for _, a := range r.s.alerts {
		if filter.AccountID != "" && a.AccountID != filter.AccountID {
			continue
		}
		if filter.AlertType != "" && a.AlertType != filter.AlertType {
			continue
		}
		if filter.Unresolved != nil && a.IsResolved == *filter.Unresolved {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastDetectedAt.After(out[j].LastDetectedAt) })
	return out, nil
}

func (r *alertRepo) Resolve(_ context.Context, id, resolvedBy, note string, at time.Time) (*models.ReputationAlert, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.IsResolved {
		out := *a
		return &out, repository.ErrConflict
	}
	a.IsResolved = true
	a.ResolvedAt = &at
	a.ResolvedBy = resolvedBy
	a.ResolutionNote = note
	out := *a
	return &out, nil
}

func (r *alertRepo) CountOpen(_ context.Context) (int64, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	var n int64
	for _, a := range r.s.alerts {
		if !a.IsResolved {
			n++
		}
	}
	return n, nil
}
