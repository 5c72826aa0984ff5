// Package rotation picks the sending account for the next outbound message.
package rotation

import (
	"context"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/cache"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
	"github.com/customeros/mailgovernor/services/warmup"
)

const (
	outcomeSelected  = "selected"
	outcomeExhausted = "exhausted"
	outcomeError     = "error"
)

type rotationService struct {
	log        logger.Logger
	repos      *repository.Repositories
	scoreCache cache.HealthScoreCache
	metrics    *metrics.Metrics
	clock      func() time.Time
}

// NewRotationService builds the selector. scoreCache may be nil, in which case
// the persisted health score is used.
func NewRotationService(log logger.Logger, repos *repository.Repositories, scoreCache cache.HealthScoreCache, m *metrics.Metrics) interfaces.RotationService {
	return &rotationService{
		log:        log,
		repos:      repos,
		scoreCache: scoreCache,
		metrics:    m,
		clock:      utils.Now,
	}
}

type candidate struct {
	account *models.SendingAccount
	score   int
	daily   int
	hourly  int
}

func (s *rotationService) Select(ctx context.Context, request dto.SelectRequest) (*dto.Reserved, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RotationService.Select")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("request.excluded", len(request.ExcludeIDs)))

	accounts, err := s.repos.SendingAccountRepository.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.metrics.ObserveRotation(outcomeError)
		return nil, governor_errors.NewPersistenceError("rotation list", err)
	}

	now := s.clock().Truncate(time.Microsecond)
	candidates := eligible(accounts, request.ExcludeIDs, now)
	if len(candidates) == 0 {
		s.metrics.ObserveRotation(outcomeExhausted)
		reason := "all active accounts are at their limits"
		if len(accounts) == 0 {
			reason = "no active accounts"
		}
		return nil, &governor_errors.ExhaustionError{Reason: reason, Considered: len(accounts)}
	}

	s.applyScores(ctx, candidates)
	rank(candidates)

	conflicts := 0
	for _, c := range candidates {
		reservation := newReservation(c.account, now)
		err := s.repos.SendingAccountRepository.Reserve(ctx, reservation)
		if errors.Is(err, repository.ErrConflict) {
			conflicts++
			s.metrics.ObserveReservationConflict()
			span.LogFields(tracingLog.String("conflict", c.account.ID))
			continue
		}
		if err != nil {
			tracing.TraceErr(span, err)
			s.metrics.ObserveRotation(outcomeError)
			return nil, governor_errors.NewPersistenceError("rotation reserve", err)
		}

		reserved := *c.account
		applyReservation(&reserved, reservation)
		tracing.TagAccount(span, reserved.ID)
		s.metrics.ObserveRotation(outcomeSelected)
		return &dto.Reserved{
			Account:     &reserved,
			HealthScore: c.score,
			Considered:  len(accounts),
			Conflicts:   conflicts,
		}, nil
	}

	s.metrics.ObserveRotation(outcomeExhausted)
	return nil, &governor_errors.ExhaustionError{
		Reason:     "every eligible account was reserved concurrently",
		Considered: len(accounts),
	}
}

// applyScores reads cached scores in one round trip. A miss or a cache failure
// falls back to the persisted score.
func (s *rotationService) applyScores(ctx context.Context, candidates []*candidate) {
	for _, c := range candidates {
		c.score = c.account.HealthScore
	}
	if s.scoreCache == nil {
		return
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.account.ID
	}
	scores, err := s.scoreCache.GetMulti(ctx, ids)
	if err != nil {
		s.log.Warnf("health score cache unavailable, using stored scores: %v", err)
		return
	}
	for _, c := range candidates {
		if score, ok := scores[c.account.ID]; ok {
			c.score = score
		}
	}
}

// eligible keeps active, non-excluded accounts with room in both windows.
func eligible(accounts []models.SendingAccount, exclude []string, now time.Time) []*candidate {
	excluded := utils.ToSet(exclude)

	var out []*candidate
	for i := range accounts {
		account := &accounts[i]
		if excluded[account.ID] {
			continue
		}
		daily, hourly := warmup.EffectiveLimits(account, now)
		if daily <= 0 || account.SentTodayAt(now) >= daily {
			continue
		}
		if hourly > 0 && account.SentThisHourAt(now) >= hourly {
			continue
		}
		out = append(out, &candidate{account: account, daily: daily, hourly: hourly})
	}
	return out
}

// rank orders by score, then least recently used. Never-used accounts go first.
func rank(candidates []*candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		switch {
		case a.account.LastUsedAt == nil:
			return b.account.LastUsedAt != nil
		case b.account.LastUsedAt == nil:
			return false
		}
		return a.account.LastUsedAt.Before(*b.account.LastUsedAt)
	})
}

// newReservation advances the usage windows of account for one send at now.
func newReservation(account *models.SendingAccount, now time.Time) repository.Reservation {
	usedAt := now
	if account.LastUsedAt != nil && !usedAt.After(*account.LastUsedAt) {
		// the compare-and-set needs a value distinct from the one it replaces
		usedAt = account.LastUsedAt.Add(time.Microsecond)
	}
	return repository.Reservation{
		AccountID:          account.ID,
		ExpectedLastUsedAt: account.LastUsedAt,
		UsedAt:             usedAt,
		UsageDay:           utils.DayKey(now),
		SentToday:          account.SentTodayAt(now) + 1,
		UsageHour:          utils.HourKey(now),
		SentThisHour:       account.SentThisHourAt(now) + 1,
	}
}

func applyReservation(account *models.SendingAccount, r repository.Reservation) {
	usedAt := r.UsedAt
	account.LastUsedAt = &usedAt
	account.LastRotationUsedAt = &usedAt
	account.UsageDay, account.SentToday = r.UsageDay, r.SentToday
	account.UsageHour, account.SentThisHour = r.UsageHour, r.SentThisHour
	account.SentCount++
}
