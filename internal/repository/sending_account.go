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

// Reservation claims one send slot on an account. It only applies if the
// account's last_used_at still equals ExpectedLastUsedAt.
type Reservation struct {
	AccountID          string
	ExpectedLastUsedAt *time.Time
	UsedAt             time.Time
	UsageDay           string
	SentToday          int
	UsageHour          string
	SentThisHour       int
}

type WarmupFields struct {
	State          enum.WarmupState
	InProgress     bool
	StartedAt      *time.Time
	CompletedAt    *time.Time
	StartVolume    int
	DailyIncrement int
	MaxVolume      int
	DailyLimit     int
	HourlyLimit    int
}

type SendingAccountRepository interface {
	Create(ctx context.Context, account *models.SendingAccount) error
	GetByID(ctx context.Context, id string) (*models.SendingAccount, error)
	GetByAddress(ctx context.Context, address string) (*models.SendingAccount, error)
	List(ctx context.Context) ([]models.SendingAccount, error)
	ListActive(ctx context.Context) ([]models.SendingAccount, error)
	ListWarming(ctx context.Context) ([]models.SendingAccount, error)
	ListByDomain(ctx context.Context, domain string) ([]models.SendingAccount, error)
	ListDomains(ctx context.Context) ([]string, error)
	SetStatus(ctx context.Context, id string, status enum.AccountStatus, reason string) error
	UpdateWarmup(ctx context.Context, id string, fields WarmupFields) error
	UpdateHealth(ctx context.Context, id string, score int, status enum.HealthStatus, at time.Time) error
	UpdateAuthFlags(ctx context.Context, domain string, spf, dkim, dmarc bool) (int64, error)
	Reserve(ctx context.Context, reservation Reservation) error
}

type GormSendingAccountRepository struct {
	db *gorm.DB
}

func NewSendingAccountRepository(db *gorm.DB) SendingAccountRepository {
	return &GormSendingAccountRepository{db: db}
}

func (r *GormSendingAccountRepository) Create(ctx context.Context, account *models.SendingAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("address", account.Address))

	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	tracing.TagAccount(span, account.ID)
	return nil
}

func (r *GormSendingAccountRepository) GetByID(ctx context.Context, id string) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	var account models.SendingAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &account, nil
}

func (r *GormSendingAccountRepository) GetByAddress(ctx context.Context, address string) (*models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.GetByAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("address", address))

	var account models.SendingAccount
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &account, nil
}

func (r *GormSendingAccountRepository) List(ctx context.Context) ([]models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []models.SendingAccount
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("result.count", len(accounts)))
	return accounts, nil
}

func (r *GormSendingAccountRepository) ListActive(ctx context.Context) ([]models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.ListActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []models.SendingAccount
	err := r.db.WithContext(ctx).
		Where("status = ?", enum.AccountStatusActive).
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("result.count", len(accounts)))
	return accounts, nil
}

func (r *GormSendingAccountRepository) ListWarming(ctx context.Context) ([]models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.ListWarming")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []models.SendingAccount
	err := r.db.WithContext(ctx).
		Where("warmup_state = ?", enum.WarmupWarming).
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return accounts, nil
}

func (r *GormSendingAccountRepository) ListByDomain(ctx context.Context, domain string) ([]models.SendingAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.ListByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", domain))

	var accounts []models.SendingAccount
	err := r.db.WithContext(ctx).Where("domain = ?", domain).Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return accounts, nil
}

func (r *GormSendingAccountRepository) ListDomains(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.ListDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []string
	err := r.db.WithContext(ctx).
		Model(&models.SendingAccount{}).
		Distinct("domain").
		Order("domain").
		Pluck("domain", &domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return domains, nil
}

func (r *GormSendingAccountRepository) SetStatus(ctx context.Context, id string, status enum.AccountStatus, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.SetStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)
	span.LogFields(tracingLog.String("status", status.String()))

	result := r.db.WithContext(ctx).
		Model(&models.SendingAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"status_reason": reason,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormSendingAccountRepository) UpdateWarmup(ctx context.Context, id string, fields WarmupFields) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.UpdateWarmup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)
	tracing.LogObjectAsJson(span, "fields", fields)

	result := r.db.WithContext(ctx).
		Model(&models.SendingAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"warmup_state":           fields.State,
			"warmup_in_progress":     fields.InProgress,
			"warmup_started_at":      fields.StartedAt,
			"warmup_completed_at":    fields.CompletedAt,
			"warmup_start_volume":    fields.StartVolume,
			"warmup_daily_increment": fields.DailyIncrement,
			"warmup_max_volume":      fields.MaxVolume,
			"daily_limit":            fields.DailyLimit,
			"hourly_limit":           fields.HourlyLimit,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormSendingAccountRepository) UpdateHealth(ctx context.Context, id string, score int, status enum.HealthStatus, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.UpdateHealth")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)
	span.LogFields(tracingLog.Int("score", score))

	result := r.db.WithContext(ctx).
		Model(&models.SendingAccount{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"health_score":      score,
			"health_status":     status,
			"health_updated_at": at,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormSendingAccountRepository) UpdateAuthFlags(ctx context.Context, domain string, spf, dkim, dmarc bool) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.UpdateAuthFlags")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("domain", domain))

	result := r.db.WithContext(ctx).
		Model(&models.SendingAccount{}).
		Where("domain = ?", domain).
		Updates(map[string]interface{}{
			"spf_ok":               spf,
			"dkim_ok":              dkim,
			"dmarc_ok":             dmarc,
			"domain_authenticated": spf && dkim && dmarc,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Reserve is a compare-and-set on last_used_at. ErrConflict means another
// caller reserved the account first, or it stopped being active.
func (r *GormSendingAccountRepository) Reserve(ctx context.Context, reservation Reservation) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendingAccountRepository.Reserve")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, reservation.AccountID)

	query := r.db.WithContext(ctx).
		Model(&models.SendingAccount{}).
		Where("id = ? AND status = ?", reservation.AccountID, enum.AccountStatusActive)
	if reservation.ExpectedLastUsedAt == nil {
		query = query.Where("last_used_at IS NULL")
	} else {
		query = query.Where("last_used_at = ?", *reservation.ExpectedLastUsedAt)
	}

	result := query.UpdateColumns(map[string]interface{}{
		"last_used_at":          reservation.UsedAt,
		"last_rotation_used_at": reservation.UsedAt,
		"usage_day":             reservation.UsageDay,
		"sent_today":            reservation.SentToday,
		"usage_hour":            reservation.UsageHour,
		"sent_this_hour":        reservation.SentThisHour,
		"sent_count":            gorm.Expr("sent_count + 1"),
	})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		span.LogFields(tracingLog.Bool("result.conflict", true))
		return ErrConflict
	}
	return nil
}
