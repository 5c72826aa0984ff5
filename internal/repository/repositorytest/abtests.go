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

type abTestRepo struct{ s *Store }

func (r *abTestRepo) Create(_ context.Context, test *models.ABTest) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	if test.ID == "" {
		test.ID = utils.GenerateNanoIDWithPrefix("abt", 16)
	}
	now := r.s.clock()
	test.CreatedAt, test.UpdatedAt = now, now
	for i := range test.Variants {
		v := &test.Variants[i]
		if v.ID == "" {
			v.ID = utils.GenerateNanoIDWithPrefix("abv", 16)
		}
		v.TestID = test.ID
		// creation order is the tie-break, keep it strictly increasing
		v.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		stored := *v
		r.s.variants[v.ID] = &stored
	}
	stored := *test
	stored.Variants = nil
	r.s.tests[test.ID] = &stored
	return nil
}

// assemble must be called with the lock held.
func (r *abTestRepo) assemble(t *models.ABTest) models.ABTest {
	out := *t
	out.Variants = nil
	for _, v := range r.s.variants {
		if v.TestID == t.ID {
			out.Variants = append(out.Variants, *v)
		}
	}
	sort.Slice(out.Variants, func(i, j int) bool { return out.Variants[i].Position < out.Variants[j].Position })
	return out
}

func (r *abTestRepo) GetByID(_ context.Context, id string) (*models.ABTest, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	t, ok := r.s.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := r.assemble(t)
	return &out, nil
}

func (r *abTestRepo) List(_ context.Context, status *enum.ABTestStatus) ([]models.ABTest, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.ABTest{}
	for _, t := range r.s.tests {
		if status == nil || t.Status == *status {
			out = append(out, r.assemble(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *abTestRepo) ListRunningEndedBefore(_ context.Context, before time.Time) ([]models.ABTest, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	out := []models.ABTest{}
	for _, t := range r.s.tests {
		if t.Status == enum.ABTestRunning && t.EndsAt != nil && t.EndsAt.Before(before) {
			out = append(out, r.assemble(t))
		}
	}
	return out, nil
}

func (r *abTestRepo) Transition(_ context.Context, id string, from []enum.ABTestStatus, to enum.ABTestStatus, fields map[string]interface{}) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	t, ok := r.s.tests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !statusIn(t.Status, from) {
		return repository.ErrConflict
	}
	t.Status = to
	for k, v := range fields {
		switch k {
		case "started_at":
			t.StartedAt = timePtr(v)
		case "ends_at":
			t.EndsAt = timePtr(v)
		case "completed_at":
			t.CompletedAt = timePtr(v)
		}
	}
	return nil
}

func (r *abTestRepo) GetVariant(_ context.Context, variantID string) (*models.ABTestVariant, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	v, ok := r.s.variants[variantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *v
	return &out, nil
}

func (r *abTestRepo) IncrementVariantCounter(_ context.Context, variantID string, column string) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	v, ok := r.s.variants[variantID]
	if !ok {
		return repository.ErrNotFound
	}
	switch column {
	case "sent_count":
		v.SentCount++
	case "delivered_count":
		v.DeliveredCount++
	case "open_count":
		v.OpenCount++
	case "click_count":
		v.ClickCount++
	case "reply_count":
		v.ReplyCount++
	case "bounce_count":
		v.BounceCount++
	}
	return nil
}

func (r *abTestRepo) CompleteWithWinner(_ context.Context, testID, variantID string, override bool, at time.Time) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(); err != nil {
		return err
	}
	t, ok := r.s.tests[testID]
	if !ok {
		return repository.ErrNotFound
	}
	allowed := []enum.ABTestStatus{enum.ABTestRunning}
	if override {
		allowed = append(allowed, enum.ABTestCompleted, enum.ABTestDraft)
	}
	if !statusIn(t.Status, allowed) {
		return repository.ErrConflict
	}
	winner, ok := r.s.variants[variantID]
	if !ok || winner.TestID != testID {
		return repository.ErrNotFound
	}
	for _, v := range r.s.variants {
		if v.TestID == testID {
			v.IsWinner = false
		}
	}
	winner.IsWinner = true
	t.Status = enum.ABTestCompleted
	t.WinnerVariantID = &variantID
	t.WinnerOverride = override
	t.CompletedAt = &at
	return nil
}

func statusIn(s enum.ABTestStatus, set []enum.ABTestStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func timePtr(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}
