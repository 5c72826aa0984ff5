package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type DomainRecordRepository interface {
	GetByDomain(ctx context.Context, domain string) (*models.DomainRecord, error)
	GetOrCreate(ctx context.Context, domain string) (*models.DomainRecord, error)
	Save(ctx context.Context, record *models.DomainRecord) error
	List(ctx context.Context) ([]models.DomainRecord, error)
	ListCheckedBefore(ctx context.Context, before time.Time) ([]models.DomainRecord, error)
	CreateDMARCReport(ctx context.Context, report *models.DMARCReport) error
	ListDMARCReports(ctx context.Context, domain string, limit int) ([]models.DMARCReport, error)
	CreateReputation(ctx context.Context, reputation *models.DomainReputation) error
	LatestReputation(ctx context.Context, domain string) (*models.DomainReputation, error)
}

type GormDomainRecordRepository struct {
	db *gorm.DB
}

func NewDomainRecordRepository(db *gorm.DB) DomainRecordRepository {
	return &GormDomainRecordRepository{db: db}
}

func (r *GormDomainRecordRepository) GetByDomain(ctx context.Context, domain string) (*models.DomainRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", domain))

	var record models.DomainRecord
	err := r.db.WithContext(ctx).Where("domain = ?", domain).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("result.found", false))
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

// GetOrCreate returns the domain's record, inserting a not_checked one when absent.
func (r *GormDomainRecordRepository) GetOrCreate(ctx context.Context, domain string) (*models.DomainRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.GetOrCreate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", domain))

	record, err := r.GetByDomain(ctx, domain)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	record = &models.DomainRecord{
		Domain:      domain,
		SpfStatus:   enum.VerificationNotChecked,
		DkimStatus:  enum.VerificationNotChecked,
		DmarcStatus: enum.VerificationNotChecked,
	}
	err = r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		// lost a creation race, the other writer's row is as good as ours
		if isUniqueViolation(err) {
			return r.GetByDomain(ctx, domain)
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Bool("result.created", true))
	return record, nil
}

func (r *GormDomainRecordRepository) Save(ctx context.Context, record *models.DomainRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, record.ID)

	err := r.db.WithContext(ctx).Save(record).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *GormDomainRecordRepository) List(ctx context.Context) ([]models.DomainRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DomainRecord
	err := r.db.WithContext(ctx).Order("domain ASC").Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *GormDomainRecordRepository) ListCheckedBefore(ctx context.Context, before time.Time) ([]models.DomainRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.ListCheckedBefore")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DomainRecord
	err := r.db.WithContext(ctx).
		Where("last_checked IS NULL OR last_checked < ?", before).
		Order("last_checked ASC NULLS FIRST").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *GormDomainRecordRepository) CreateDMARCReport(ctx context.Context, report *models.DMARCReport) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.CreateDMARCReport")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", report.Domain))

	err := r.db.WithContext(ctx).Create(report).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *GormDomainRecordRepository) ListDMARCReports(ctx context.Context, domain string, limit int) ([]models.DMARCReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.ListDMARCReports")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", domain))

	var reports []models.DMARCReport
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		Order("report_end DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return reports, nil
}

func (r *GormDomainRecordRepository) CreateReputation(ctx context.Context, reputation *models.DomainReputation) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.CreateReputation")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", reputation.Domain))

	err := r.db.WithContext(ctx).Create(reputation).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *GormDomainRecordRepository) LatestReputation(ctx context.Context, domain string) (*models.DomainReputation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRecordRepository.LatestReputation")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", domain))

	var reputation models.DomainReputation
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		Order("created_at DESC").
		First(&reputation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &reputation, nil
}
