package alerts

import (
	"context"
	"fmt"
	"math"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

type alertService struct {
	log       logger.Logger
	repos     *repository.Repositories
	publisher interfaces.EventPublisher
	metrics   *metrics.Metrics
	cfg       *config.GovernorConfig
}

func NewAlertService(log logger.Logger, repos *repository.Repositories, publisher interfaces.EventPublisher, m *metrics.Metrics, cfg *config.GovernorConfig) interfaces.AlertService {
	return &alertService{
		log:       log,
		repos:     repos,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
	}
}

// SeverityFor grades how far a value is past its threshold. ratio is
// detected/threshold for upper limits and threshold/detected for lower ones.
func SeverityFor(ratio float64) enum.AlertSeverity {
	switch {
	case ratio < 1.5:
		return enum.SeverityInfo
	case ratio < 2:
		return enum.SeverityWarning
	default:
		return enum.SeverityCritical
	}
}

// Breaches lists the threshold rules the account currently violates. The
// health rule only applies once the account has volume; the neutral score of
// a fresh account is not a breach.
func Breaches(account *models.SendingAccount, cfg *config.GovernorConfig) []models.ReputationAlert {
	var out []models.ReputationAlert

	rateAlert := func(alertType enum.AlertType, rate *float64, threshold float64, count int, label string) {
		if rate == nil || *rate <= threshold {
			return
		}
		out = append(out, models.ReputationAlert{
			AccountID:     account.ID,
			AlertType:     alertType,
			Severity:      SeverityFor(*rate / threshold),
			DetectedValue: *rate,
			Threshold:     threshold,
			Message:       fmt.Sprintf("%s %s is %.2f%%, above the %.2f%% threshold", account.Address, label, *rate*100, threshold*100),
			Details: models.AlertDetails{Rate: &models.RateAlertDetails{
				EventCount: count,
				SentCount:  account.SentCount,
			}},
		})
	}
	rateAlert(enum.AlertHighBounceRate, account.BounceRate, cfg.AlertBounceRate, account.BounceCount, "bounce rate")
	rateAlert(enum.AlertHighComplaintRate, account.ComplaintRate, cfg.AlertComplaintRate, account.ComplaintCount, "complaint rate")

	if hasVolume(account) && account.HealthScore < cfg.AlertHealthScore {
		threshold := float64(cfg.AlertHealthScore)
		out = append(out, models.ReputationAlert{
			AccountID:     account.ID,
			AlertType:     enum.AlertLowHealthScore,
			Severity:      SeverityFor(threshold / math.Max(float64(account.HealthScore), 1)),
			DetectedValue: float64(account.HealthScore),
			Threshold:     threshold,
			Message:       fmt.Sprintf("%s health score is %d, below %d", account.Address, account.HealthScore, cfg.AlertHealthScore),
			Details:       models.AlertDetails{Score: &models.ScoreAlertDetails{HealthStatus: account.HealthStatus}},
		})
	}
	return out
}

func hasVolume(account *models.SendingAccount) bool {
	return account.BounceRate != nil || account.OpenRate != nil
}

func (s *alertService) Evaluate(ctx context.Context, account *models.SendingAccount) ([]models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AlertService.Evaluate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	breaches := Breaches(account, s.cfg)
	span.LogFields(tracingLog.Int("breaches", len(breaches)))

	raised := make([]models.ReputationAlert, 0, len(breaches))
	for i := range breaches {
		alert, err := s.upsert(ctx, &breaches[i])
		if err != nil {
			tracing.TraceErr(span, err)
			return raised, err
		}
		raised = append(raised, *alert)
	}
	return raised, nil
}

func (s *alertService) RaiseBlacklisted(ctx context.Context, account *models.SendingAccount, reputation *models.DomainReputation) (*models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AlertService.RaiseBlacklisted")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	listings := reputation.MajorListings + reputation.SpamTrapListings
	severity := enum.SeverityWarning
	if reputation.SpamTrapListings > 0 || reputation.MajorListings > 1 {
		severity = enum.SeverityCritical
	}

	alert := &models.ReputationAlert{
		AccountID:     account.ID,
		AlertType:     enum.AlertBlacklisted,
		Severity:      severity,
		DetectedValue: float64(listings),
		Threshold:     0,
		Message:       fmt.Sprintf("%s is listed on %d blacklist(s)", reputation.Domain, listings),
		Details: models.AlertDetails{Blacklist: &models.BlacklistAlertDetails{
			Domain:           reputation.Domain,
			MajorListings:    reputation.MajorListings,
			MinorListings:    reputation.MinorListings,
			SpamTrapListings: reputation.SpamTrapListings,
		}},
	}
	stored, err := s.upsert(ctx, alert)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return stored, nil
}

func (s *alertService) upsert(ctx context.Context, alert *models.ReputationAlert) (*models.ReputationAlert, error) {
	stored, inserted, err := s.repos.ReputationAlertRepository.Upsert(ctx, alert)
	if err != nil {
		return nil, governor_errors.NewPersistenceError("alert upsert", err)
	}
	if !inserted {
		return stored, nil
	}

	s.metrics.ObserveAlert(stored.AlertType.String(), stored.Severity.String())
	s.log.Warnf("reputation alert %s raised for account %s: %s", stored.AlertType, stored.AccountID, stored.Message)

	err = s.publisher.PublishFanoutEvent(ctx, stored.ID, enum.ALERT, dto.ReputationAlertRaised{
		AlertID:       stored.ID,
		AccountID:     stored.AccountID,
		AlertType:     stored.AlertType,
		Severity:      stored.Severity,
		DetectedValue: stored.DetectedValue,
		Threshold:     stored.Threshold,
		Message:       stored.Message,
	})
	if err != nil {
		s.log.Errorf("failed to publish alert %s: %v", stored.ID, err)
	}
	return stored, nil
}

func (s *alertService) Resolve(ctx context.Context, alertID, resolvedBy, note string) (*models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AlertService.Resolve")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, alertID)

	if resolvedBy == "" {
		resolvedBy = utils.GetOperatorFromContext(ctx)
	}
	if resolvedBy == "" {
		return nil, governor_errors.NewValidationError("resolvedBy", "is required")
	}

	alert, err := s.repos.ReputationAlertRepository.Resolve(ctx, alertID, resolvedBy, note, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("alert resolve", "alert", alertID, err)
	}
	return alert, nil
}

func (s *alertService) List(ctx context.Context, accountID string, unresolvedOnly bool) ([]models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AlertService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	filter := repository.AlertFilter{AccountID: accountID}
	if unresolvedOnly {
		filter.Unresolved = utils.Ptr(true)
	}
	alerts, err := s.repos.ReputationAlertRepository.List(ctx, filter)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("alert list", err)
	}
	return alerts, nil
}
