package domain

import (
	"context"
	stderrors "errors"

	"github.com/customeros/mailwatcher/blscan"
	"github.com/customeros/mailwatcher/domainage"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailgovernor/dto"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

type BlacklistCounts struct {
	Major    int
	Minor    int
	SpamTrap int
}

// ReputationScanner looks a domain up in whois and the public blacklists.
type ReputationScanner interface {
	// DomainAgeDays reports false when the age could not be determined.
	DomainAgeDays(domain string) (int, bool)
	Blacklists(domain string) BlacklistCounts
}

type mailwatcherScanner struct{}

func NewReputationScanner() ReputationScanner {
	return mailwatcherScanner{}
}

func (mailwatcherScanner) DomainAgeDays(domain string) (int, bool) {
	dates, err := domainage.GetDomainDates(domain)
	if err != nil || !dates.Success {
		return 0, false
	}
	return dates.CreationAge, true
}

func (mailwatcherScanner) Blacklists(domain string) BlacklistCounts {
	result := blscan.ScanBlacklists(domain, "domain")
	return BlacklistCounts{
		Major:    result.MajorLists,
		Minor:    result.MinorLists,
		SpamTrap: result.SpamTrapLists,
	}
}

// DomainAgePenalty is how much a young domain is distrusted, in points.
func DomainAgePenalty(ageDays int) int {
	switch {
	case ageDays <= 1:
		return 75
	case ageDays <= 7:
		return 60
	case ageDays <= 10:
		return 50
	case ageDays <= 15:
		return 40
	case ageDays <= 30:
		return 30
	case ageDays <= 90:
		return 15
	default:
		return 0
	}
}

func BlacklistPenaltyPercent(c BlacklistCounts) int {
	pct := c.Major*80 + c.Minor*10 + c.SpamTrap*20
	if pct > 100 {
		return 100
	}
	return pct
}

// ScanReputation records one reputation snapshot and raises a blacklisted
// alert for every account sending from a listed domain.
func (s *domainService) ScanReputation(ctx context.Context, domain string) (*dto.ReputationScanResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ScanReputation")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domain, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	tracing.TagEntity(span, domain)

	reputation := &models.DomainReputation{Domain: domain, CreatedAt: utils.Now()}
	if age, ok := s.scanner.DomainAgeDays(domain); ok {
		reputation.DomainAgeDays = age
		reputation.DomainAgePenalty = DomainAgePenalty(age)
	} else {
		span.LogFields(tracingLog.Bool("domainAge.unknown", true))
	}
	counts := s.scanner.Blacklists(domain)
	reputation.MajorListings = counts.Major
	reputation.MinorListings = counts.Minor
	reputation.SpamTrapListings = counts.SpamTrap
	reputation.BlacklistPenaltyPct = BlacklistPenaltyPercent(counts)

	if err := s.repos.DomainRecordRepository.CreateReputation(ctx, reputation); err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("create reputation", err)
	}

	result := &dto.ReputationScanResult{
		Domain:           domain,
		DomainAgeDays:    reputation.DomainAgeDays,
		DomainAgePenalty: reputation.DomainAgePenalty,
		BlacklistPenalty: reputation.BlacklistPenaltyPct,
		Blacklisted:      reputation.Blacklisted(),
	}
	if !reputation.Blacklisted() || s.alerts == nil {
		return result, nil
	}

	accounts, err := s.repos.SendingAccountRepository.ListByDomain(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list domain accounts", err)
	}
	for i := range accounts {
		if _, err := s.alerts.RaiseBlacklisted(ctx, &accounts[i], reputation); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to raise blacklist alert for %s: %v", accounts[i].ID, err)
			continue
		}
		result.AlertsRaised++
	}
	s.log.Warnf("%s is blacklisted (major %d, spam traps %d)", domain, counts.Major, counts.SpamTrap)
	return result, nil
}

// ScanAllReputations scans every domain that has sending accounts. One failing
// domain does not stop the others.
func (s *domainService) ScanAllReputations(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ScanAllReputations")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domains, err := s.repos.SendingAccountRepository.ListDomains(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return governor_errors.NewPersistenceError("list sending domains", err)
	}
	if len(domains) == 0 {
		span.LogKV("result.message", "No sending domains found")
		return nil
	}

	var errs []error
	for _, d := range domains {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.ScanReputation(ctx, d); err != nil {
			tracing.TraceErr(span, err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
