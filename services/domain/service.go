// Package domain verifies SPF, DKIM and DMARC for sending domains and tracks
// their reputation.
package domain

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

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

type domainService struct {
	log       logger.Logger
	repos     *repository.Repositories
	resolver  TXTResolver
	scanner   ReputationScanner
	health    interfaces.HealthService
	alerts    interfaces.AlertService
	publisher interfaces.EventPublisher
	metrics   *metrics.Metrics
	cfg       *config.DNSConfig
	retry     RetryPolicy

	// one attempt per domain at a time
	inflight sync.Map
}

type Dependencies struct {
	Resolver  TXTResolver
	Scanner   ReputationScanner
	Health    interfaces.HealthService
	Alerts    interfaces.AlertService
	Publisher interfaces.EventPublisher
	Metrics   *metrics.Metrics
}

func NewDomainService(log logger.Logger, repos *repository.Repositories, cfg *config.DNSConfig, deps Dependencies) interfaces.DomainService {
	return &domainService{
		log:       log,
		repos:     repos,
		resolver:  deps.Resolver,
		scanner:   deps.Scanner,
		health:    deps.Health,
		alerts:    deps.Alerts,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		cfg:       cfg,
		retry:     RetryPolicyFrom(cfg),
	}
}

// NormalizeDomain lowercases and validates a domain against the public suffix list.
func NormalizeDomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return "", governor_errors.NewValidationError("domain", "domain is required")
	}
	if strings.ContainsAny(domain, " @/:") {
		return "", governor_errors.NewValidationError("domain", "invalid domain "+domain)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return "", governor_errors.NewValidationError("domain", "invalid domain "+domain)
	}
	return domain, nil
}

func (s *domainService) VerifyEmailDomain(ctx context.Context, email string) (*dto.DomainVerificationResult, error) {
	validation := mailvalidate.ValidateEmailSyntax(email)
	if !validation.IsValid || validation.Domain == "" {
		return nil, governor_errors.NewValidationError("email", "invalid email address")
	}
	return s.Verify(ctx, validation.Domain)
}

// Verify runs one attempt for all three record types. Every record enters
// pending and is persisted before any lookup starts.
func (s *domainService) Verify(ctx context.Context, domain string) (*dto.DomainVerificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domain, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	tracing.TagEntity(span, domain)

	if _, busy := s.inflight.LoadOrStore(domain, struct{}{}); busy {
		return nil, governor_errors.NewConflictError("verification of %s is already running", domain)
	}
	defer s.inflight.Delete(domain)

	record, err := s.repos.DomainRecordRepository.GetOrCreate(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("domain get or create", err)
	}

	for _, recordType := range enum.AllDNSRecordTypes {
		if err := transition(record, recordType, enum.VerificationPending); err != nil {
			return nil, err
		}
	}
	if err := s.repos.DomainRecordRepository.Save(ctx, record); err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("domain save pending", err)
	}

	evaluations := s.lookup(ctx, domain)

	var lastErrors []string
	for _, e := range evaluations {
		if err := transition(record, e.Type, e.Status); err != nil {
			return nil, err
		}
		record.SetRecords(e.Type, e.Current, e.Recommended)
		if e.Type == enum.RecordDKIM {
			record.DkimSelector = e.Selector
		}
		if e.Err != nil {
			lastErrors = append(lastErrors, e.Err.Error())
		}
		s.metrics.ObserveVerification(e.Type.String(), e.Status.String())
	}
	now := utils.Now()
	record.LastChecked = &now
	record.LastError = strings.Join(lastErrors, "; ")

	if err := s.repos.DomainRecordRepository.Save(ctx, record); err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("domain save result", err)
	}

	updated, err := s.refreshAccounts(ctx, record)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.publish(ctx, record)
	span.LogFields(tracingLog.Bool("result.authenticated", record.Authenticated()))
	return resultOf(record, evaluations, updated), nil
}

func transition(record *models.DomainRecord, recordType enum.DNSRecordType, to enum.VerificationStatus) error {
	from := record.Status(recordType)
	if from == "" {
		from = enum.VerificationNotChecked
	}
	if !enum.CanTransition(from, to) {
		return errors.Wrapf(governor_errors.ErrInvalidTransition, "%s %s -> %s", recordType, from, to)
	}
	record.SetStatus(recordType, to)
	return nil
}

// lookup resolves the three record types concurrently. Failures never abort the
// group; each settles on its own status.
func (s *domainService) lookup(ctx context.Context, domain string) []Evaluation {
	recommended := Recommend(domain, s.cfg)
	evaluations := make([]Evaluation, 3)

	var g errgroup.Group
	g.Go(func() error {
		evaluations[0] = s.checkSPF(ctx, domain, recommended.SPF)
		return nil
	})
	g.Go(func() error {
		evaluations[1] = s.checkDKIM(ctx, domain, recommended.DKIM)
		return nil
	})
	g.Go(func() error {
		evaluations[2] = s.checkDMARC(ctx, domain, recommended.DMARC)
		return nil
	})
	_ = g.Wait()
	return evaluations
}

// resolve retries transient failures; an empty answer is not retried.
func (s *domainService) resolve(ctx context.Context, domain string, recordType enum.DNSRecordType, name string) ([]string, error) {
	var records []string
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		lookupCtx, cancel := context.WithTimeout(ctx, s.timeout())
		defer cancel()
		var err error
		records, err = s.resolver.LookupTXT(lookupCtx, name)
		return err
	})
	if err != nil {
		return nil, &governor_errors.VerificationError{Domain: domain, RecordType: recordType.String(), Err: err}
	}
	return records, nil
}

func (s *domainService) timeout() time.Duration {
	if s.cfg.LookupTimeout <= 0 {
		return 5 * time.Second
	}
	return s.cfg.LookupTimeout
}

func (s *domainService) checkSPF(ctx context.Context, domain, recommended string) Evaluation {
	e := Evaluation{Type: enum.RecordSPF, Recommended: recommended}
	records, err := s.resolve(ctx, domain, enum.RecordSPF, domain)
	if err != nil {
		e.Status, e.Err = enum.VerificationFailed, err
		return e
	}
	e.Status, e.Current = EvaluateSPF(records, s.cfg)
	return e
}

// checkDKIM tries the configured selectors in order and stops at the first
// valid key. It only reports failed when no selector answered at all.
func (s *domainService) checkDKIM(ctx context.Context, domain, recommended string) Evaluation {
	e := Evaluation{Type: enum.RecordDKIM, Recommended: recommended, Status: enum.VerificationInvalid}
	answered := false
	var lastErr error
	for _, selector := range s.cfg.DKIMSelectors {
		selector = strings.TrimSpace(selector)
		if selector == "" {
			continue
		}
		records, err := s.resolve(ctx, domain, enum.RecordDKIM, dkimHost(selector, domain))
		if err != nil {
			lastErr = err
			continue
		}
		answered = true
		status, current := EvaluateDKIM(records)
		if status == enum.VerificationValid {
			e.Status, e.Current, e.Selector = status, current, selector
			return e
		}
		if current != "" && e.Current == "" {
			e.Current, e.Selector = current, selector
		}
	}
	if !answered && lastErr != nil {
		e.Status, e.Err = enum.VerificationFailed, lastErr
	}
	return e
}

func (s *domainService) checkDMARC(ctx context.Context, domain, recommended string) Evaluation {
	e := Evaluation{Type: enum.RecordDMARC, Recommended: recommended}
	records, err := s.resolve(ctx, domain, enum.RecordDMARC, dmarcHost(domain))
	if err != nil {
		e.Status, e.Err = enum.VerificationFailed, err
		return e
	}
	e.Status, e.Current = EvaluateDMARC(records)
	return e
}

// refreshAccounts copies the verdict onto the domain's sending accounts and
// queues their health recompute, since the auth bonus may have changed.
func (s *domainService) refreshAccounts(ctx context.Context, record *models.DomainRecord) (int64, error) {
	spf := record.SpfStatus == enum.VerificationValid
	dkim := record.DkimStatus == enum.VerificationValid
	dmarc := record.DmarcStatus == enum.VerificationValid

	updated, err := s.repos.SendingAccountRepository.UpdateAuthFlags(ctx, record.Domain, spf, dkim, dmarc)
	if err != nil {
		return 0, governor_errors.NewPersistenceError("update auth flags", err)
	}
	if updated == 0 || s.health == nil {
		return updated, nil
	}

	accounts, err := s.repos.SendingAccountRepository.ListByDomain(ctx, record.Domain)
	if err != nil {
		s.log.Errorf("failed to list accounts of %s for health recompute: %v", record.Domain, err)
		return updated, nil
	}
	for _, account := range accounts {
		s.health.Schedule(account.ID)
	}
	return updated, nil
}

func (s *domainService) publish(ctx context.Context, record *models.DomainRecord) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishFanoutEvent(ctx, record.Domain, enum.DOMAIN, dto.DomainVerified{
		Domain:        record.Domain,
		Authenticated: record.Authenticated(),
		SpfStatus:     record.SpfStatus,
		DkimStatus:    record.DkimStatus,
		DmarcStatus:   record.DmarcStatus,
	})
	if err != nil {
		s.log.Errorf("failed to publish domain verified event for %s: %v", record.Domain, err)
	}
}

func resultOf(record *models.DomainRecord, evaluations []Evaluation, updated int64) *dto.DomainVerificationResult {
	result := &dto.DomainVerificationResult{
		Domain:          record.Domain,
		Authenticated:   record.Authenticated(),
		LastChecked:     record.LastChecked,
		AccountsUpdated: updated,
	}
	for _, e := range evaluations {
		rv := dto.RecordVerification{
			Type:              e.Type,
			Status:            e.Status,
			Host:              hostFor(e, record.Domain),
			CurrentRecord:     e.Current,
			RecommendedRecord: e.Recommended,
		}
		if e.Err != nil {
			rv.Error = e.Err.Error()
		}
		result.Records = append(result.Records, rv)
	}
	return result
}

func hostFor(e Evaluation, domain string) string {
	switch e.Type {
	case enum.RecordDKIM:
		if e.Selector != "" {
			return dkimHost(e.Selector, domain)
		}
		return dkimHost("<selector>", domain)
	case enum.RecordDMARC:
		return dmarcHost(domain)
	}
	return domain
}

func (s *domainService) Get(ctx context.Context, domain string) (*models.DomainRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.Get")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domain, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	tracing.TagEntity(span, domain)

	record, err := s.repos.DomainRecordRepository.GetByDomain(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("domain get", "domain", domain, err)
	}
	return record, nil
}

func (s *domainService) List(ctx context.Context) ([]models.DomainRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	records, err := s.repos.DomainRecordRepository.List(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("domain list", err)
	}
	return records, nil
}

// ReverifyStale re-runs verification for domains not checked within the stale
// window, plus sending domains that were never verified.
func (s *domainService) ReverifyStale(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ReverifyStale")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	stale, err := s.repos.DomainRecordRepository.ListCheckedBefore(ctx, utils.Now().Add(-s.cfg.StaleAfter))
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("list stale domains", err)
	}
	domains := make([]string, 0, len(stale))
	seen := map[string]bool{}
	for _, r := range stale {
		seen[r.Domain] = true
		domains = append(domains, r.Domain)
	}

	sending, err := s.repos.SendingAccountRepository.ListDomains(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("list sending domains", err)
	}
	for _, d := range sending {
		if seen[d] {
			continue
		}
		_, err := s.repos.DomainRecordRepository.GetByDomain(ctx, d)
		if errors.Is(err, repository.ErrNotFound) {
			seen[d] = true
			domains = append(domains, d)
		}
	}

	verified := 0
	for _, d := range domains {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Verify(ctx, d); err != nil {
			s.log.Warnf("re-verification of %s failed: %v", d, err)
			continue
		}
		verified++
	}
	span.LogFields(tracingLog.Int("result.verified", verified), tracingLog.Int("result.candidates", len(domains)))
	return verified, nil
}
