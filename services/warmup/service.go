package warmup

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

type warmupService struct {
	log   logger.Logger
	repos *repository.Repositories
}

func NewWarmupService(log logger.Logger, repos *repository.Repositories) interfaces.WarmupService {
	return &warmupService{log: log, repos: repos}
}

// Advance persists today's limit for every warming account and completes the
// ones that reached their ceiling. It returns the number of accounts changed.
func (s *warmupService) Advance(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WarmupService.Advance")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.repos.SendingAccountRepository.ListWarming(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("warmup advance", err)
	}

	now := utils.Now()
	changed := 0
	for i := range accounts {
		account := &accounts[i]
		fields, ok := Next(account, now)
		if !ok {
			continue
		}
		if err := s.repos.SendingAccountRepository.UpdateWarmup(ctx, account.ID, fields); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to advance warmup for %s: %v", account.ID, err)
			continue
		}
		if fields.State == enum.WarmupComplete {
			s.log.Infof("warmup complete for %s at %d/day", account.Address, fields.DailyLimit)
		}
		changed++
	}

	span.LogFields(tracingLog.Int("result.changed", changed))
	return changed, nil
}

// Next computes the warmup columns for now. ok is false when nothing changes:
// the limit never shrinks and a complete warmup stays complete.
func Next(account *models.SendingAccount, now time.Time) (repository.WarmupFields, bool) {
	fields := FieldsOf(account)
	if account.WarmupState == enum.WarmupComplete {
		return fields, false
	}

	changed := false
	if account.WarmupStartedAt == nil {
		// fail safe: start the ramp now at the lowest limit
		fields.StartedAt = &now
		changed = true
	}

	limit := DailyLimit(account, now)
	if limit > fields.DailyLimit {
		fields.DailyLimit = limit
		changed = true
	}

	if Reached(account, now) {
		fields.State = enum.WarmupComplete
		fields.InProgress = false
		fields.CompletedAt = &now
		fields.DailyLimit = account.WarmupMaxVolume
		changed = true
	} else if fields.State != enum.WarmupWarming {
		fields.State = enum.WarmupWarming
		fields.InProgress = true
		changed = true
	}
	return fields, changed
}

func FieldsOf(account *models.SendingAccount) repository.WarmupFields {
	return repository.WarmupFields{
		State:          account.WarmupState,
		InProgress:     account.WarmupInProgress,
		StartedAt:      account.WarmupStartedAt,
		CompletedAt:    account.WarmupCompletedAt,
		StartVolume:    account.WarmupStartVolume,
		DailyIncrement: account.WarmupDailyIncrement,
		MaxVolume:      account.WarmupMaxVolume,
		DailyLimit:     account.DailyLimit,
		HourlyLimit:    account.HourlyLimit,
	}
}
