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
	"github.com/customeros/mailgovernor/internal/utils"
)

type AlertFilter struct {
	AccountID  string
	AlertType  enum.AlertType
	Unresolved *bool
}

type ReputationAlertRepository interface {
	Upsert(ctx context.Context, alert *models.ReputationAlert) (*models.ReputationAlert, bool, error)
	GetByID(ctx context.Context, id string) (*models.ReputationAlert, error)
	List(ctx context.Context, filter AlertFilter) ([]models.ReputationAlert, error)
	Resolve(ctx context.Context, id, resolvedBy, note string, at time.Time) (*models.ReputationAlert, error)
	CountOpen(ctx context.Context) (int64, error)
}

type GormReputationAlertRepository struct {
	db *gorm.DB
}

func NewReputationAlertRepository(db *gorm.DB) ReputationAlertRepository {
	return &GormReputationAlertRepository{db: db}
}

// Relies on idx_reputation_alerts_open, the partial unique index created by MigrateDB.
const upsertAlertSQL = `
INSERT INTO reputation_alerts
	(id, account_id, alert_type, severity, detected_value, threshold, message, details,
	 occurrence_count, is_resolved, first_detected_at, last_detected_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, false, ?, ?, ?, ?)
ON CONFLICT (account_id, alert_type) WHERE is_resolved = false
DO UPDATE SET
	severity = EXCLUDED.severity,
	detected_value = EXCLUDED.detected_value,
	threshold = EXCLUDED.threshold,
	message = EXCLUDED.message,
	details = EXCLUDED.details,
	last_detected_at = EXCLUDED.last_detected_at,
	occurrence_count = reputation_alerts.occurrence_count + 1,
	updated_at = EXCLUDED.updated_at
RETURNING *, (xmax = 0) AS inserted`

type alertUpsertRow struct {
	models.ReputationAlert `gorm:"embedded"`
	Inserted               bool `gorm:"column:inserted"`
}

// Upsert raises the alert or, if an unresolved one of the same type exists for the
// account, refreshes it. The bool reports whether a new alert was created.
func (r *GormReputationAlertRepository) Upsert(ctx context.Context, alert *models.ReputationAlert) (*models.ReputationAlert, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReputationAlertRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, alert.AccountID)
	span.LogFields(tracingLog.String("alertType", alert.AlertType.String()))

	now := utils.Now()
	if alert.ID == "" {
		alert.ID = utils.GenerateNanoIDWithPrefix("alert", 16)
	}
	if alert.LastDetectedAt.IsZero() {
		alert.LastDetectedAt = now
	}

	var row alertUpsertRow
	err := r.db.WithContext(ctx).Raw(upsertAlertSQL,
		alert.ID, alert.AccountID, alert.AlertType, alert.Severity, alert.DetectedValue, alert.Threshold,
		alert.Message, alert.Details, alert.LastDetectedAt, alert.LastDetectedAt, now, now,
	).Scan(&row).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, false, err
	}

	span.LogFields(tracingLog.Bool("result.created", row.Inserted))
	return &row.ReputationAlert, row.Inserted, nil
}

func (r *GormReputationAlertRepository) GetByID(ctx context.Context, id string) (*models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReputationAlertRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var alert models.ReputationAlert
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &alert, nil
}

func (r *GormReputationAlertRepository) List(ctx context.Context, filter AlertFilter) ([]models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReputationAlertRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.LogObjectAsJson(span, "filter", filter)

	query := r.db.WithContext(ctx)
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.AlertType != "" {
		query = query.Where("alert_type = ?", filter.AlertType)
	}
	if filter.Unresolved != nil {
		query = query.Where("is_resolved = ?", !*filter.Unresolved)
	}

	var alerts []models.ReputationAlert
	err := query.Order("last_detected_at DESC").Find(&alerts).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return alerts, nil
}

// Resolve closes an open alert. Resolving an already resolved alert is ErrConflict.
func (r *GormReputationAlertRepository) Resolve(ctx context.Context, id, resolvedBy, note string, at time.Time) (*models.ReputationAlert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReputationAlertRepository.Resolve")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.ReputationAlert{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]interface{}{
			"is_resolved":     true,
			"resolved_at":     at,
			"resolved_by":     resolvedBy,
			"resolution_note": note,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return nil, result.Error
	}

	alert, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return alert, ErrConflict
	}
	return alert, nil
}

func (r *GormReputationAlertRepository) CountOpen(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReputationAlertRepository.CountOpen")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReputationAlert{}).
		Where("is_resolved = ?", false).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return 0, err
	}
	return count, nil
}
