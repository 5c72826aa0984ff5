// Package account is the registry of sending accounts: creation, status,
// warmup plans, limits and the delivery settings overview.
package account

import (
	"context"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
	"github.com/customeros/mailgovernor/services/health"
	"github.com/customeros/mailgovernor/services/warmup"
)

type accountService struct {
	log    logger.Logger
	repos  *repository.Repositories
	cfg    *config.GovernorConfig
	health interfaces.HealthService
	clock  func() time.Time
}

// NewAccountService builds the registry. healthService may be nil; it is only
// used to schedule recomputes after auth flags change.
func NewAccountService(log logger.Logger, repos *repository.Repositories, cfg *config.GovernorConfig, healthService interfaces.HealthService) interfaces.AccountService {
	return &accountService{
		log:    log,
		repos:  repos,
		cfg:    cfg,
		health: healthService,
		clock:  utils.Now,
	}
}

func (s *accountService) Create(ctx context.Context, input dto.CreateAccountInput) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.Create")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "input", input)

	address := utils.NormalizeEmail(input.Address)
	syntax := mailvalidate.ValidateEmailSyntax(address)
	if address == "" || !syntax.IsValid {
		return nil, governor_errors.NewValidationError("address", "is not a valid email address")
	}
	provider := input.Provider
	if provider == "" {
		provider = enum.EmailSMTP
	}
	if !provider.IsValid() {
		return nil, governor_errors.NewValidationError("provider", "unknown provider "+provider.String())
	}
	if err := s.validateLimits(input.DailyLimit, input.HourlyLimit); err != nil {
		return nil, err
	}

	account := &models.SendingAccount{
		Address:     address,
		Domain:      strings.ToLower(syntax.Domain),
		FromName:    strings.TrimSpace(input.FromName),
		Provider:    provider,
		Status:      enum.AccountStatusActive,
		DailyLimit:  input.DailyLimit,
		HourlyLimit: input.HourlyLimit,
		WarmupState: enum.WarmupNotStarted,
	}
	if input.Warmup != nil {
		plan, err := normalizePlan(*input.Warmup, input.DailyLimit)
		if err != nil {
			return nil, err
		}
		applyWarmupFields(account, startFields(account, plan, s.clock()))
	}
	if err := s.applyDomainAuth(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	neutral := health.Score(health.InputsFor(account))
	account.HealthScore, account.HealthStatus = neutral.Score, neutral.Status

	if err := s.repos.SendingAccountRepository.Create(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("create account", "account", address, err)
	}
	s.log.Infof("sending account %s created for %s", account.ID, account.Address)
	return account, nil
}

// validateLimits enforces dailyLimit >= hourlyLimit x min hours per day.
func (s *accountService) validateLimits(daily, hourly int) error {
	if daily <= 0 {
		return governor_errors.NewValidationError("dailyLimit", "must be positive")
	}
	if hourly <= 0 {
		return governor_errors.NewValidationError("hourlyLimit", "must be positive")
	}
	minHours := s.cfg.MinHoursPerDay
	if minHours < 1 {
		minHours = 1
	}
	if daily < hourly*minHours {
		return governor_errors.NewValidationError("dailyLimit", "must be at least hourlyLimit times the minimum sending hours per day")
	}
	return nil
}

// applyDomainAuth copies the verified state of the account's domain, when it has been verified.
func (s *accountService) applyDomainAuth(ctx context.Context, account *models.SendingAccount) error {
	record, err := s.repos.DomainRecordRepository.GetByDomain(ctx, account.Domain)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return governor_errors.NewPersistenceError("load domain record", err)
	}
	account.SpfOk = record.SpfStatus == enum.VerificationValid
	account.DkimOk = record.DkimStatus == enum.VerificationValid
	account.DmarcOk = record.DmarcStatus == enum.VerificationValid
	account.DomainAuthenticated = account.SpfOk && account.DkimOk && account.DmarcOk
	return nil
}

func (s *accountService) Get(ctx context.Context, id string) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.Get")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.repos.SendingAccountRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("load account", "account", id, err)
	}
	return account, nil
}

func (s *accountService) List(ctx context.Context) ([]models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.repos.SendingAccountRepository.List(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list accounts", err)
	}
	return accounts, nil
}

func (s *accountService) ListActive(ctx context.Context) ([]models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.ListActive")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.repos.SendingAccountRepository.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list active accounts", err)
	}
	return accounts, nil
}

// SetStatus is the operator's way to pause, suspend or reactivate an account. Accounts are never deleted.
func (s *accountService) SetStatus(ctx context.Context, id string, status enum.AccountStatus, reason string) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.SetStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)
	span.LogFields(tracingLog.String("status", status.String()))

	if !status.IsValid() {
		return nil, governor_errors.NewValidationError("status", "must be one of active, paused, suspended")
	}
	if err := s.repos.SendingAccountRepository.SetStatus(ctx, id, status, strings.TrimSpace(reason)); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("set account status", "account", id, err)
	}
	s.log.Infof("account %s set to %s by %s", id, status, utils.GetOperatorFromContext(ctx))
	return s.Get(ctx, id)
}

func (s *accountService) StartWarmup(ctx context.Context, id string, plan dto.WarmupPlan) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.StartWarmup")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.WarmupState != enum.WarmupNotStarted {
		return nil, governor_errors.NewConflictError("account %s warmup is %s; reset it first", id, account.WarmupState)
	}
	plan, err = normalizePlan(plan, account.DailyLimit)
	if err != nil {
		return nil, err
	}
	return s.writeWarmup(ctx, span, account, startFields(account, plan, s.clock()))
}

// ResetWarmup restarts the ramp at day 0 with the account's current plan.
func (s *accountService) ResetWarmup(ctx context.Context, id string) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.ResetWarmup")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.WarmupMaxVolume <= 0 {
		return nil, governor_errors.NewValidationError("warmup", "account has no warmup plan")
	}
	plan := dto.WarmupPlan{
		StartVolume:    account.WarmupStartVolume,
		DailyIncrement: account.WarmupDailyIncrement,
		MaxVolume:      account.WarmupMaxVolume,
	}
	return s.writeWarmup(ctx, span, account, startFields(account, plan, s.clock()))
}

func (s *accountService) writeWarmup(ctx context.Context, span opentracing.Span, account *models.SendingAccount, fields repository.WarmupFields) (*models.SendingAccount, error) {
	if err := s.repos.SendingAccountRepository.UpdateWarmup(ctx, account.ID, fields); err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("update warmup", "account", account.ID, err)
	}
	applyWarmupFields(account, fields)
	return account, nil
}

func (s *accountService) UpdateAuthFlags(ctx context.Context, domain string, spf, dkim, dmarc bool) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.UpdateAuthFlags")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("domain", domain))

	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return 0, governor_errors.NewValidationError("domain", "is required")
	}
	updated, err := s.repos.SendingAccountRepository.UpdateAuthFlags(ctx, domain, spf, dkim, dmarc)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("update auth flags", err)
	}
	if updated > 0 && s.health != nil {
		accounts, err := s.repos.SendingAccountRepository.ListByDomain(ctx, domain)
		if err != nil {
			s.log.Warnf("failed to list accounts of %s for recompute: %v", domain, err)
			return updated, nil
		}
		for _, a := range accounts {
			s.health.Schedule(a.ID)
		}
	}
	return updated, nil
}

func (s *accountService) Limits(ctx context.Context, id string) (*dto.SendingLimits, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.Limits")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return LimitsOf(account, s.clock()), nil
}

// LimitsOf reports an account's caps and usage as seen at now.
func LimitsOf(account *models.SendingAccount, now time.Time) *dto.SendingLimits {
	daily, hourly := warmup.EffectiveLimits(account, now)
	sentToday, sentThisHour := account.SentTodayAt(now), account.SentThisHourAt(now)

	limits := &dto.SendingLimits{
		AccountID:             account.ID,
		Address:               account.Address,
		Status:                account.Status,
		ConfiguredDailyLimit:  account.DailyLimit,
		ConfiguredHourlyLimit: account.HourlyLimit,
		EffectiveDailyLimit:   daily,
		EffectiveHourlyLimit:  hourly,
		SentToday:             sentToday,
		SentThisHour:          sentThisHour,
		RemainingToday:        remaining(daily, sentToday),
		WarmupState:           account.WarmupState,
		WarmupMaxVolume:       account.WarmupMaxVolume,
	}
	if hourly > 0 {
		limits.RemainingThisHour = remaining(hourly, sentThisHour)
		if limits.RemainingThisHour > limits.RemainingToday {
			limits.RemainingThisHour = limits.RemainingToday
		}
	} else {
		limits.RemainingThisHour = limits.RemainingToday
	}
	if account.IsWarming() {
		limits.WarmupDay = warmup.DayIndex(account, now)
	}
	return limits
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}

func (s *accountService) DeliverySettings(ctx context.Context) (*dto.DeliverySettings, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.DeliverySettings")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	domains, err := s.repos.DomainRecordRepository.List(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list domains", err)
	}
	openAlerts, err := s.repos.ReputationAlertRepository.CountOpen(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("count open alerts", err)
	}

	overall := Overall(accounts)
	overall.OpenAlerts = openAlerts
	return &dto.DeliverySettings{Accounts: accounts, Domains: domains, OverallMetrics: overall}, nil
}

// Overall aggregates the fleet. Rates are pooled over all accounts, the same way
// an account derives its own rates from its counters.
func Overall(accounts []models.SendingAccount) dto.OverallMetrics {
	var (
		out   dto.OverallMetrics
		total models.SendingAccount
		score int
	)
	out.TotalAccounts = len(accounts)
	for i := range accounts {
		a := &accounts[i]
		switch a.Status {
		case enum.AccountStatusActive:
			out.ActiveAccounts++
		case enum.AccountStatusPaused:
			out.PausedAccounts++
		}
		score += a.HealthScore
		total.SentCount += a.SentCount
		total.DeliveredCount += a.DeliveredCount
		total.BounceCount += a.BounceCount
		total.ComplaintCount += a.ComplaintCount
		total.OpenCount += a.OpenCount
		total.ClickCount += a.ClickCount
		total.ReplyCount += a.ReplyCount
	}
	if out.TotalAccounts > 0 {
		out.AverageHealthScore = float64(score) / float64(out.TotalAccounts)
	}
	out.TotalSent = total.SentCount

	total.DeriveRates()
	out.BounceRate = utils.GetOrDefault(total.BounceRate, 0)
	out.ComplaintRate = utils.GetOrDefault(total.ComplaintRate, 0)
	out.OpenRate = utils.GetOrDefault(total.OpenRate, 0)
	out.ClickRate = utils.GetOrDefault(total.ClickRate, 0)
	out.ReplyRate = utils.GetOrDefault(total.ReplyRate, 0)
	return out
}

// normalizePlan defaults the ceiling to the configured daily limit.
func normalizePlan(plan dto.WarmupPlan, dailyLimit int) (dto.WarmupPlan, error) {
	if plan.MaxVolume == 0 {
		plan.MaxVolume = dailyLimit
	}
	switch {
	case plan.StartVolume <= 0:
		return plan, governor_errors.NewValidationError("warmup.startVolume", "must be positive")
	case plan.DailyIncrement < 0:
		return plan, governor_errors.NewValidationError("warmup.dailyIncrement", "must not be negative")
	case plan.MaxVolume < plan.StartVolume:
		return plan, governor_errors.NewValidationError("warmup.maxVolume", "must be at least startVolume")
	}
	return plan, nil
}

// startFields puts the account at day 0 of the plan.
func startFields(account *models.SendingAccount, plan dto.WarmupPlan, now time.Time) repository.WarmupFields {
	fields := warmup.FieldsOf(account)
	fields.State = enum.WarmupWarming
	fields.InProgress = true
	fields.StartedAt = &now
	fields.CompletedAt = nil
	fields.StartVolume = plan.StartVolume
	fields.DailyIncrement = plan.DailyIncrement
	fields.MaxVolume = plan.MaxVolume
	fields.DailyLimit = plan.StartVolume
	return fields
}

func applyWarmupFields(account *models.SendingAccount, f repository.WarmupFields) {
	account.WarmupState = f.State
	account.WarmupInProgress = f.InProgress
	account.WarmupStartedAt = f.StartedAt
	account.WarmupCompletedAt = f.CompletedAt
	account.WarmupStartVolume = f.StartVolume
	account.WarmupDailyIncrement = f.DailyIncrement
	account.WarmupMaxVolume = f.MaxVolume
	account.DailyLimit = f.DailyLimit
	account.HourlyLimit = f.HourlyLimit
}
